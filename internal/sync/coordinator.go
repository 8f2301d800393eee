package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/relation"
	"github.com/mkuiper/recordstore/internal/schema"
	"github.com/mkuiper/recordstore/internal/store"
)

// Coordinator drives incremental sync: per (kind, scope) it computes what
// to ask the backend for, sends the request, and folds the response into
// the store. Response folding happens through a single store event, so a
// fold is atomic relative to every other read and write.
//
// In-flight requests are not cancelled when a newer one for the same scope
// starts; a late response still folds (last-merge-wins). Each request
// carries a generation token and the scope status remembers the newest
// one, so callers needing stricter ordering can compare tokens.
type Coordinator struct {
	store     *store.Store
	transport Transport
	schema    schema.Schema
	inflect   relation.Inflector
	tokens    TokenGenerator
	logger    *slog.Logger
	now       func() time.Time

	mu       gosync.Mutex
	statuses map[string]ScopeStatus
}

// Config wires a Coordinator. Store and Transport are required; the rest
// default sensibly.
type Config struct {
	Store     *store.Store
	Transport Transport
	Schema    schema.Schema
	Inflector relation.Inflector
	Tokens    TokenGenerator
	Logger    *slog.Logger
	Now       func() time.Time
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Inflector == nil {
		cfg.Inflector = relation.DefaultInflector{}
	}
	if cfg.Tokens == nil {
		cfg.Tokens = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		store:     cfg.Store,
		transport: cfg.Transport,
		schema:    cfg.Schema,
		inflect:   cfg.Inflector,
		tokens:    cfg.Tokens,
		logger:    cfg.Logger,
		now:       cfg.Now,
		statuses:  map[string]ScopeStatus{},
	}
}

// Options tune one sync call.
type Options struct {
	// Filters partition the kind into an independent sync scope.
	Filters map[string]any

	// Params are passed through to the backend untouched.
	Params map[string]any

	// LocalKind stores the response under a different collection name
	// than the server resource, for scoped variants of a kind.
	LocalKind string

	// ScopeKeyOverride replaces the derived scope key.
	ScopeKeyOverride string

	// Inverted pages in the older direction: the watermark becomes the
	// min stamp instead of the max.
	Inverted bool

	// Refresh drops all stamps, making the call a full resync.
	Refresh bool

	// Force treats the response as authoritative even when the server
	// didn't ask for it.
	Force bool

	// IgnoreStamp sends no watermarks without the force semantics.
	IgnoreStamp bool

	// IgnoreDeletedStamp skips the deletion checkpoint.
	IgnoreDeletedStamp bool
}

// SyncResult is the outcome of one sync call. OK false means nothing was
// merged.
type SyncResult struct {
	OK     bool
	Status int
	Items  []record.Record
	Token  string
}

// Sync performs one incremental sync for (kind, scope).
func (c *Coordinator) Sync(ctx context.Context, kind string, opts Options) SyncResult {
	localKind := opts.LocalKind
	if localKind == "" {
		localKind = kind
	}
	scopeKey := opts.ScopeKeyOverride
	if scopeKey == "" {
		scopeKey = ScopeKey(localKind, opts.Filters)
	}

	token := c.tokens.Generate()
	params := c.buildIndexParams(kind, localKind, scopeKey, token, opts)
	c.setState(scopeKey, Syncing, token)

	res, err := c.transport.Post(ctx, kind+"/index", params)
	if err != nil {
		c.logger.Warn("sync transport failure", "kind", kind, "scope", scopeKey, "error", err)
		c.revertState(scopeKey)
		return SyncResult{OK: false, Token: token}
	}
	if !res.OK {
		c.revertState(scopeKey)
		return SyncResult{OK: false, Status: res.Status, Token: token}
	}

	merge, items := buildMerge(res.Data, kind, localKind, scopeKey, opts.Force || opts.Refresh)
	// Only dispatch when there is something to change; empty incremental
	// responses must not invalidate downstream views.
	if mergeWorthDispatching(merge) {
		c.store.Dispatch(merge)
	}
	c.setSynced(scopeKey, token)

	return SyncResult{OK: true, Status: res.Status, Items: items, Token: token}
}

// buildIndexParams assembles the request for one (kind, scope).
func (c *Coordinator) buildIndexParams(kind, localKind, scopeKey, token string, opts Options) map[string]any {
	params := map[string]any{}
	for k, v := range opts.Params {
		params[k] = v
	}

	if !opts.Refresh && !opts.IgnoreStamp {
		stamps := computeStamps(c.store.State(), c.schema, kind, localKind, scopeKey, opts.Inverted)
		if stamps.LastUpdated != nil {
			params["last_updated_stamp"] = stamps.LastUpdated
		}
		if stamps.LastCreated != nil {
			params["last_created_stamp"] = stamps.LastCreated
		}
		if len(stamps.CurrentIDs) > 0 {
			params["current_ids"] = stamps.CurrentIDs
		}
		if len(stamps.UnscopedIDs) > 0 {
			params["unscoped_ids"] = stamps.UnscopedIDs
		}
	}

	if !opts.Refresh && !opts.IgnoreDeletedStamp {
		if stamp := c.store.State().DeletedStamp(kind); stamp != nil {
			params["deleted_stamp"] = stamp
		}
	}
	if v := c.store.State().ActionVersion(localKind); v != 0 {
		params["action_version"] = v
	}
	if len(opts.Filters) > 0 {
		params["filters"] = opts.Filters
	}
	if opts.Inverted {
		params["direction"] = "older"
	}
	params["request_token"] = token
	return params
}

// buildMerge folds a response body into a store merge event, stamping each
// incoming item with the scope it arrived through.
func buildMerge(data map[string]any, kind, localKind, scopeKey string, localForce bool) (store.Merge, []record.Record) {
	items := decodeItems(data["items"])
	stamped := make([]record.Record, len(items))
	for i, r := range items {
		stamped[i] = r.WithScope(scopeKey)
	}

	return store.Merge{
		Kind:                localKind,
		ScopeKey:            scopeKey,
		Items:               stamped,
		Force:               boolOf(data["force"]) || localForce,
		DeletedIDs:          idSlice(data["destroyed_ids"]),
		RemovedFromScopeIDs: idSlice(data["removed_from_scope_ids"]),
		DeletedStamp:        data["deleted_stamp"],
		StampKind:           kind,
		ActionVersion:       int64Of(data["action_version"]),
	}, stamped
}

func mergeWorthDispatching(m store.Merge) bool {
	return len(m.Items) > 0 || m.Force || len(m.DeletedIDs) > 0 || len(m.RemovedFromScopeIDs) > 0
}

// Status returns the bookkeeping snapshot for a (kind, filters) scope.
func (c *Coordinator) Status(kind string, filters map[string]any) ScopeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[ScopeKey(kind, filters)]
}

func (c *Coordinator) setState(scopeKey string, state ScopeState, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statuses[scopeKey]
	s.State = state
	s.LastToken = token
	c.statuses[scopeKey] = s
}

func (c *Coordinator) setSynced(scopeKey, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statuses[scopeKey]
	s.State = Synced
	s.LastToken = token
	s.LastSyncedAt = c.now()
	c.statuses[scopeKey] = s
}

// revertState returns a failed scope to Synced when it has synced before,
// Unsynced otherwise.
func (c *Coordinator) revertState(scopeKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.statuses[scopeKey]
	if s.LastSyncedAt.IsZero() {
		s.State = Unsynced
	} else {
		s.State = Synced
	}
	c.statuses[scopeKey] = s
}
