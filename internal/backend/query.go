package backend

import (
	"fmt"
	"sort"
	"strings"
)

// compileFilters turns a filters map into a parameterized WHERE fragment
// over the record's JSON document. Values are never interpolated, always
// bound. Keys are sorted so the same filters always compile to the same
// SQL, and list values become IN clauses.
//
// Returns ("", nil) for empty filters.
func compileFilters(filters map[string]any) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		clauses []string
		params  []any
	)
	for _, field := range keys {
		column := fmt.Sprintf("json_extract(data, '$.%s')", sanitizeField(field))
		switch want := filters[field].(type) {
		case nil:
			clauses = append(clauses, column+" IS NULL")
		case []any:
			if len(want) == 0 {
				// Empty membership matches nothing.
				clauses = append(clauses, "1 = 0")
				continue
			}
			placeholders := strings.Repeat("?, ", len(want)-1) + "?"
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, placeholders))
			params = append(params, want...)
		default:
			clauses = append(clauses, column+" = ?")
			params = append(params, want)
		}
	}
	return strings.Join(clauses, " AND "), params
}

// sanitizeField strips characters that would escape the JSON path. Field
// names are server-controlled schema terms, never free text, so dropping
// odd characters is enough.
func sanitizeField(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, field)
}

// FilteredSince returns records of a kind matching filters with a server
// stamp strictly after stamp, filtering inside sqlite via the JSON1
// extension. Deterministic order by id.
func (d *DB) FilteredSince(kind, stamp string, filters map[string]any) ([]map[string]any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	q := "SELECT data FROM records WHERE kind = ?"
	args := []any{kind}
	if stamp != "" {
		q += " AND updated_at > ?"
		args = append(args, stamp)
	}
	if where, params := compileFilters(filters); where != "" {
		q += " AND " + where
		args = append(args, params...)
	}
	q += " ORDER BY id"
	return d.scanRecords(q, args...)
}
