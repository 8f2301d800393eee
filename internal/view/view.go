// Package view materializes joined, filtered read models from the store
// and memoizes them so unchanged inputs return the identical result slice.
package view

import (
	"log/slog"
	gosync "sync"
	"time"

	"github.com/mkuiper/recordstore/internal/join"
	"github.com/mkuiper/recordstore/internal/query"
	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/relation"
	"github.com/mkuiper/recordstore/internal/schema"
	"github.com/mkuiper/recordstore/internal/store"
)

// WrapFunc post-processes each record of a materialized kind, e.g. to add
// computed fields.
type WrapFunc func(kind string, r record.Record) record.Record

// EnrichFunc post-processes a whole materialized collection after joins
// and wrapping, before filters.
type EnrichFunc func(kind string, items []record.Record) []record.Record

// Materializer turns store snapshots into joined read models.
//
// Results are memoized by content-addressed key: the hash of (kind,
// options) identifies the question, and per-kind generation counters
// identify the answer's inputs. A cached result is reused as long as every
// kind it read from is at the generation it was computed against, so
// mutations to unrelated kinds never invalidate it. Reuse returns the
// identical slice, which makes change detection upstream a pointer
// comparison.
type Materializer struct {
	store  *store.Store
	schema schema.Schema
	joiner *join.Engine
	wrap   WrapFunc
	enrich EnrichFunc
	logger *slog.Logger
	now    func() time.Time

	mu    gosync.Mutex
	cache map[string]*memoEntry
}

type memoEntry struct {
	gens  map[string]uint64
	items []record.Record
}

// Config wires a Materializer. Store is required.
type Config struct {
	Store     *store.Store
	Inflector relation.Inflector
	Wrap      WrapFunc
	Enrich    EnrichFunc
	Logger    *slog.Logger
	Now       func() time.Time
}

// New creates a Materializer reading from cfg.Store.
func New(cfg Config) *Materializer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sch := cfg.Store.Schema()
	return &Materializer{
		store:  cfg.Store,
		schema: sch,
		joiner: join.NewEngine(relation.New(sch, cfg.Inflector)),
		wrap:   cfg.Wrap,
		enrich: cfg.Enrich,
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// Options select and shape one materialized view.
type Options struct {
	// Filters keep records whose fields match; values follow the loose
	// coercion rules (arrays intersect, date ranges overlap or contain).
	Filters map[string]any

	// Exact disables loose coercion for Filters.
	Exact bool

	// Not drops records whose fields match.
	Not map[string]any

	// Includes keeps records whose array fields contain the given values.
	Includes map[string]any

	// Joins names related kinds to attach, in any of the accepted spec
	// shapes (string, list, nested map). Merged over the kind's default
	// joins from the schema.
	Joins any

	// SkipDefaultJoins materializes without the schema's default joins.
	SkipDefaultJoins bool
}

// Materialize returns the joined, filtered collection for kind.
func (m *Materializer) Materialize(kind string, opts Options) []record.Record {
	st := m.store.State()
	nodes := m.joinNodes(kind, opts)
	kinds := append([]string{kind}, join.Flatten(nodes)...)

	key := memoKey(kind, opts)
	if items, ok := m.lookup(key, st, kinds); ok {
		return items
	}

	items := m.joiner.JoinTree(st.Collections(kinds), kind, nodes)
	if m.wrap != nil {
		wrapped := make([]record.Record, len(items))
		for i, r := range items {
			wrapped[i] = m.wrap(kind, r)
		}
		items = wrapped
	}
	if m.enrich != nil {
		items = m.enrich(kind, items)
	}

	if len(opts.Filters) > 0 {
		items = query.FromMap(opts.Filters, query.Options{Exact: opts.Exact}).Filter(items)
	}
	if len(opts.Not) > 0 {
		items = query.FromMap(opts.Not, query.Options{Exact: opts.Exact}).FilterNot(items)
	}
	if len(opts.Includes) > 0 {
		items = query.IncludesFromMap(opts.Includes).Filter(items)
	}

	m.remember(key, st, kinds, items)
	m.logger.Debug("view materialized", "kind", kind, "records", len(items))
	return items
}

// All returns the kind's collection with default joins and no filters.
func (m *Materializer) All(kind string) []record.Record {
	return m.Materialize(kind, Options{})
}

// Where is Materialize with just filters.
func (m *Materializer) Where(kind string, filters map[string]any) []record.Record {
	return m.Materialize(kind, Options{Filters: filters})
}

// WhereNot keeps records NOT matching the filters.
func (m *Materializer) WhereNot(kind string, filters map[string]any) []record.Record {
	return m.Materialize(kind, Options{Not: filters})
}

// Includes keeps records whose array fields contain the given values.
func (m *Materializer) Includes(kind string, filters map[string]any) []record.Record {
	return m.Materialize(kind, Options{Includes: filters})
}

// Find returns the record with the given id, joined per opts.
func (m *Materializer) Find(kind string, id any, opts Options) (record.Record, bool) {
	return query.ByID(id).Find(m.Materialize(kind, opts))
}

// BetweenDays keeps records whose date field falls inside [start, end].
// Zero boundaries leave that side open.
func (m *Materializer) BetweenDays(kind, field string, start, end time.Time, opts Options) []record.Record {
	var from, to string
	if !start.IsZero() {
		from = start.Format(record.DateLayout)
	}
	if !end.IsZero() {
		to = end.Format(record.DateLayout)
	}
	return query.FilterByDate(m.Materialize(kind, opts), field, from, to)
}

// AfterToday keeps records whose date field is strictly after the
// injected clock's current day.
func (m *Materializer) AfterToday(kind, field string, opts Options) []record.Record {
	today := m.now().Format(record.DateLayout)
	out := make([]record.Record, 0)
	for _, r := range m.Materialize(kind, opts) {
		if dayOf(r.Value(field)) > today {
			out = append(out, r)
		}
	}
	return out
}

// dayOf reduces a date-ish field value to its yyyy-mm-dd day part.
func dayOf(v any) string {
	switch d := v.(type) {
	case time.Time:
		return record.FormatDate(d)
	case string:
		if len(d) > len(record.DateLayout) {
			return d[:len(record.DateLayout)]
		}
		return d
	}
	return ""
}

// joinNodes merges the schema's default joins for kind under the caller's
// joins and normalizes the result.
func (m *Materializer) joinNodes(kind string, opts Options) []join.Node {
	nodes := join.Normalize(opts.Joins, kind)
	if opts.SkipDefaultJoins {
		return nodes
	}
	seen := map[string]bool{}
	for _, n := range nodes {
		seen[n.Key] = true
	}
	for _, def := range m.schema.Kind(kind).DefaultJoins {
		for _, n := range join.Normalize(def, kind) {
			if !seen[n.Key] {
				seen[n.Key] = true
				nodes = append(nodes, n)
			}
		}
	}
	return nodes
}

// memoKey content-addresses the question being asked.
func memoKey(kind string, opts Options) string {
	return record.MustContentHash(record.DomainView, map[string]any{
		"kind":               kind,
		"filters":            opts.Filters,
		"exact":              opts.Exact,
		"not":                opts.Not,
		"includes":           opts.Includes,
		"joins":              nodesValue(join.Normalize(opts.Joins, kind)),
		"skip_default_joins": opts.SkipDefaultJoins,
	})
}

// nodesValue serializes a join tree into canonical-JSON-friendly values,
// preserving nesting so differently shaped trees hash differently.
func nodesValue(nodes []join.Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = map[string]any{"key": n.Key, "children": nodesValue(n.Children)}
	}
	return out
}

// lookup returns the cached result when every input kind is still at the
// generation the result was computed against.
func (m *Materializer) lookup(key string, st *store.State, kinds []string) ([]record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[key]
	if !ok {
		return nil, false
	}
	for _, k := range kinds {
		if st.Generation(k) != entry.gens[k] {
			return nil, false
		}
	}
	return entry.items, true
}

func (m *Materializer) remember(key string, st *store.State, kinds []string, items []record.Record) {
	gens := make(map[string]uint64, len(kinds))
	for _, k := range kinds {
		gens[k] = st.Generation(k)
	}
	m.mu.Lock()
	if m.cache == nil {
		m.cache = map[string]*memoEntry{}
	}
	m.cache[key] = &memoEntry{gens: gens, items: items}
	m.mu.Unlock()
}

// Invalidate drops every memoized result. The generation check makes this
// unnecessary in normal operation; it exists for wrap/enrich hooks whose
// output depends on state outside the store.
func (m *Materializer) Invalidate() {
	m.mu.Lock()
	m.cache = map[string]*memoEntry{}
	m.mu.Unlock()
}
