package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic canonical JSON, used wherever a
// serialized value acts as an identity: scope keys, memo keys, and golden
// cache snapshots.
//
// The encoding follows RFC 8785 where it matters for determinism:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//
// Unlike strict RFC 8785 this encoder admits null and floating-point
// numbers: filter values legitimately carry both, and encoding/json formats
// a given float identically on every call, which is all cache keying needs.
// time.Time values are rendered as wire-format date strings, and the typed
// slices the query matcher accepts ([]int, []int64, []float64, []string)
// are rendered as the equivalent JSON arrays.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalString is MarshalCanonical returning a string, panicking on
// unsupported types. Callers pass data that already round-tripped through
// JSON, so a panic indicates a programming error, not bad input.
func CanonicalString(v any) string {
	b, err := MarshalCanonical(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func marshalCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case string:
		return marshalCanonicalString(buf, val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case float64:
		if val == float64(int64(val)) {
			fmt.Fprintf(buf, "%d", int64(val))
			return nil
		}
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	case json.Number:
		buf.WriteString(val.String())
		return nil
	case time.Time:
		return marshalCanonicalString(buf, FormatDate(val))
	case Record:
		return marshalCanonicalRecord(buf, val)
	case []Record:
		buf.WriteByte('[')
		for i, r := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonicalRecord(buf, r); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case []string:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonicalString(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case []int:
		return marshalCanonicalInts(buf, len(val), func(i int) int64 { return int64(val[i]) })
	case []int64:
		return marshalCanonicalInts(buf, len(val), func(i int) int64 { return val[i] })
	case []float64:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return marshalCanonicalObject(buf, val)
	default:
		if c, ok := v.(Canonicaler); ok {
			return marshalCanonical(buf, c.CanonicalValue())
		}
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// Canonicaler lets types outside this package choose their canonical JSON
// rendering instead of being rejected as unsupported.
type Canonicaler interface {
	CanonicalValue() any
}

func marshalCanonicalInts(buf *bytes.Buffer, n int, at func(int) int64) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(buf, "%d", at(i))
	}
	buf.WriteByte(']')
	return nil
}

func marshalCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := sortedKeys(obj)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalCanonicalString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := marshalCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("object[%q]: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// marshalCanonicalRecord renders a record as its field object plus the two
// engine-managed metadata entries, so snapshots distinguish a confirmed
// record from a provisional one with identical fields.
func marshalCanonicalRecord(buf *bytes.Buffer, r Record) error {
	obj := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		obj[k] = v
	}
	scopes := append([]string(nil), r.FetchedScopes...)
	slices.Sort(scopes)
	obj["__fetched_scopes"] = scopes
	obj["__confirmed"] = r.Confirmed
	return marshalCanonicalObject(buf, obj)
}

// sortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order for strings
// outside the BMP.
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

func compareKeysUTF16(a, b string) int {
	if !hasSupplementary(a) && !hasSupplementary(b) {
		return strings.Compare(a, b)
	}
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	default:
		return 0
	}
}

func hasSupplementary(s string) bool {
	for _, r := range s {
		if r > 0xFFFF {
			return true
		}
	}
	return false
}

// marshalCanonicalString writes a canonical JSON string: NFC normalized,
// no HTML escaping. json.Encoder escapes U+2028/U+2029 for JavaScript
// compatibility; those never appear in kind names or filter values, so the
// strict RFC 8785 unescaping step is deliberately omitted here.
func marshalCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	b := tmp.Bytes()
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	buf.Write(b)
	return nil
}
