package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports a schema config problem with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileFile loads a schema from a CUE file. The file declares kinds under
// a top-level "kinds" struct:
//
//	kinds: {
//		users: {
//			hasMany: ["shift", "team"]
//			defaultJoins: ["team"]
//		}
//		shifts: {
//			sortField: "date"
//			createdStampField: "created_at"
//		}
//	}
func CompileFile(path string) (Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return CompileString(string(src))
}

// CompileString compiles schema config from CUE source.
func CompileString(src string) (Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Compile parses a CUE value holding a "kinds" struct into a Schema.
// Uses the CUE SDK's Go API directly (not CLI subprocess).
func Compile(v cue.Value) (Schema, error) {
	kindsVal := v.LookupPath(cue.ParsePath("kinds"))
	if !kindsVal.Exists() {
		return nil, &CompileError{
			Field:   "kinds",
			Message: "kinds struct is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := kindsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	out := Schema{}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		kind, err := parseKind(name, iter.Value())
		if err != nil {
			return nil, err
		}
		out[name] = kind
	}
	return out, nil
}

func parseKind(name string, v cue.Value) (Kind, error) {
	kind := Kind{Name: name}

	var err error
	if kind.HasMany, err = stringList(v, "hasMany"); err != nil {
		return kind, err
	}
	if kind.DefaultJoins, err = stringList(v, "defaultJoins"); err != nil {
		return kind, err
	}
	if kind.StampField, err = stringField(v, "stampField"); err != nil {
		return kind, err
	}
	if kind.CreatedStampField, err = stringField(v, "createdStampField"); err != nil {
		return kind, err
	}
	if kind.SortField, err = stringField(v, "sortField"); err != nil {
		return kind, err
	}

	descVal := v.LookupPath(cue.ParsePath("sortDesc"))
	if descVal.Exists() {
		desc, err := descVal.Bool()
		if err != nil {
			return kind, &CompileError{
				Field:   name + ".sortDesc",
				Message: "must be a bool",
				Pos:     descVal.Pos(),
			}
		}
		kind.SortDesc = desc
	}

	return kind, nil
}

func stringField(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: "must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func stringList(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: "must be a list of strings",
			Pos:     fv.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: "must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError converts a CUE error into a CompileError with position.
func formatCUEError(err error) error {
	if cueErr, ok := err.(cueerrors.Error); ok {
		return &CompileError{
			Field:   "cue",
			Message: cueErr.Error(),
			Pos:     cueErr.Position(),
		}
	}
	return err
}
