package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkuiper/recordstore/internal/schema"
)

// ValidationResult holds validation output for one schema file.
type ValidationResult struct {
	Valid bool     `json:"valid"`
	Kinds []string `json:"kinds,omitempty"`
	Error string   `json:"error,omitempty"`
}

func (r ValidationResult) String() string {
	if !r.Valid {
		return "invalid: " + r.Error
	}
	return fmt.Sprintf("valid: %d kind(s): %s", len(r.Kinds), strings.Join(r.Kinds, ", "))
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate <schema.cue>",
		Short:         "Validate a kind schema file",
		Long:          "Compile a CUE kind schema and report the kinds it declares. Fails with exit code 1 when the schema does not compile.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := schema.CompileFile(path)
	if err != nil {
		formatter.Error(err.Error())
		return &ExitError{Code: ExitFailure, Message: "schema validation failed", Err: err}
	}

	kinds := make([]string, 0, len(cfg))
	for name := range cfg {
		kinds = append(kinds, name)
	}
	sort.Strings(kinds)
	formatter.VerboseLog("compiled %s", path)
	return formatter.Success(ValidationResult{Valid: true, Kinds: kinds})
}
