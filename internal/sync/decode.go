package sync

import (
	"encoding/json"

	"github.com/mkuiper/recordstore/internal/record"
)

// decodeItems turns a decoded JSON items field into records. Anything that
// isn't a list of objects yields nil.
func decodeItems(v any) []record.Record {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]record.Record, 0, len(list))
	for _, item := range list {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, record.New(fields))
	}
	return out
}

// decodeItem turns a decoded JSON object into a record.
func decodeItem(v any) (record.Record, bool) {
	fields, ok := v.(map[string]any)
	if !ok {
		return record.Record{}, false
	}
	return record.New(fields), true
}

func idSlice(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return nil
}

func boolOf(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func int64Of(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}

func mapOf(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
