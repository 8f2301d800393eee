package sync

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/store"
)

// MutationResult is the outcome of a create, update or destroy call.
type MutationResult struct {
	OK     bool
	Status int
	Item   record.Record
	Items  []record.Record
	Errors map[string]any
}

// SaveOptions tune a mutation call.
type SaveOptions struct {
	// LocalKind folds the response under a different collection name
	// than the server resource.
	LocalKind string

	// Params are sent alongside the record envelope.
	Params map[string]any
}

// Save creates or updates one record. A record without an id posts to the
// collection, one with an id puts to the member route. The record fields
// travel under the singular kind name, matching the backend envelope.
func (c *Coordinator) Save(ctx context.Context, kind string, fields map[string]any, opts SaveOptions) MutationResult {
	params := map[string]any{c.inflect.Singular(kind): fields}
	for k, v := range opts.Params {
		params[k] = v
	}

	id := record.New(fields).ID()
	var (
		res Result
		err error
	)
	if id == nil {
		res, err = c.transport.Post(ctx, kind, params)
	} else {
		res, err = c.transport.Put(ctx, fmt.Sprintf("%s/%v", kind, id), params)
	}
	if err != nil {
		c.logger.Warn("save transport failure", "kind", kind, "error", err)
		return MutationResult{OK: false}
	}
	return c.handleMutation(res, kind, opts.LocalKind, id)
}

// SaveMany updates a batch of records in one round trip.
func (c *Coordinator) SaveMany(ctx context.Context, kind string, items []map[string]any, opts SaveOptions) MutationResult {
	params := map[string]any{"items": items}
	for k, v := range opts.Params {
		params[k] = v
	}
	res, err := c.transport.Post(ctx, kind+"/multi_update", params)
	if err != nil {
		c.logger.Warn("save transport failure", "kind", kind, "error", err)
		return MutationResult{OK: false}
	}
	return c.handleMutation(res, kind, opts.LocalKind, nil)
}

// Fetch retrieves a single record by id and folds it into the store.
func (c *Coordinator) Fetch(ctx context.Context, kind string, id any, opts SaveOptions) MutationResult {
	res, err := c.transport.Get(ctx, fmt.Sprintf("%s/%v", kind, id), opts.Params)
	if err != nil {
		c.logger.Warn("fetch transport failure", "kind", kind, "id", id, "error", err)
		return MutationResult{OK: false}
	}
	return c.handleMutation(res, kind, opts.LocalKind, id)
}

// Destroy deletes a record on the backend and, on success, locally. A 410
// means the record is already gone server side; the local copy is dropped
// so the caches agree.
func (c *Coordinator) Destroy(ctx context.Context, kind string, id any, opts SaveOptions) MutationResult {
	res, err := c.transport.Delete(ctx, fmt.Sprintf("%s/%v", kind, id), opts.Params)
	if err != nil {
		c.logger.Warn("destroy transport failure", "kind", kind, "id", id, "error", err)
		return MutationResult{OK: false}
	}
	localKind := opts.LocalKind
	if localKind == "" {
		localKind = kind
	}
	if res.OK && res.Data == nil {
		c.store.Dispatch(store.LocalDelete{Kind: localKind, IDs: []any{id}})
		return MutationResult{OK: true, Status: res.Status}
	}
	return c.handleMutation(res, kind, opts.LocalKind, id)
}

// DestroyMutation posts a destroy through the mutation envelope, for
// backends that report cascading deletions in the response body.
func (c *Coordinator) DestroyMutation(ctx context.Context, kind string, id any, opts SaveOptions) MutationResult {
	params := map[string]any{c.inflect.Singular(kind): map[string]any{"id": id}}
	for k, v := range opts.Params {
		params[k] = v
	}
	res, err := c.transport.Post(ctx, kind+"/destroy", params)
	if err != nil {
		c.logger.Warn("destroy transport failure", "kind", kind, "id", id, "error", err)
		return MutationResult{OK: false}
	}
	return c.handleMutation(res, kind, opts.LocalKind, id)
}

// UpdatePartial merges fields into a cached record without a round trip.
// Unknown records are left untouched; partial fields for a record never
// fetched would masquerade as the whole record.
func (c *Coordinator) UpdatePartial(kind string, id any, fields map[string]any) bool {
	col := c.store.State().Collection(kind)
	found := false
	for _, r := range col {
		if record.SameID(r.ID(), id) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	merged := map[string]any{"id": id}
	for k, v := range fields {
		merged[k] = v
	}
	c.store.Dispatch(store.LocalUpdate{Kind: kind, Item: record.New(merged)})
	return true
}

// UpdateManyPartial applies UpdatePartial per item, skipping unknown ids.
func (c *Coordinator) UpdateManyPartial(kind string, items []map[string]any) int {
	applied := 0
	for _, fields := range items {
		id := record.New(fields).ID()
		if id == nil {
			continue
		}
		if c.UpdatePartial(kind, id, fields) {
			applied++
		}
	}
	return applied
}

// ClearCache drops the named kinds from the store.
func (c *Coordinator) ClearCache(kinds ...string) {
	c.store.Dispatch(store.ClearCache{Kinds: kinds})
}

// handleMutation folds a mutation response. Bodies come in several shapes:
// a bare item, an items list, a kind-keyed items map (when a mutation
// touches several collections), and destroyed_ids as either a list or a
// kind-keyed map.
func (c *Coordinator) handleMutation(res Result, kind, localKind string, id any) MutationResult {
	if localKind == "" {
		localKind = kind
	}

	if !res.OK {
		out := MutationResult{OK: false, Status: res.Status}
		if res.Status == http.StatusGone && id != nil {
			// Already deleted upstream; reconcile by dropping ours.
			c.store.Dispatch(store.LocalDelete{Kind: localKind, IDs: []any{id}})
		}
		if errs := mapOf(res.Data["errors"]); errs != nil {
			out.Errors = errs
		}
		return out
	}

	out := MutationResult{OK: true, Status: res.Status}
	if res.Data == nil {
		return out
	}

	switch destroyed := res.Data["destroyed_ids"].(type) {
	case []any:
		c.store.Dispatch(store.LocalDelete{Kind: localKind, IDs: destroyed})
	case map[string]any:
		for k, v := range destroyed {
			if ids := idSlice(v); len(ids) > 0 {
				c.store.Dispatch(store.LocalDelete{Kind: k, IDs: ids})
			}
		}
	}

	switch body := res.Data["items"].(type) {
	case []any:
		out.Items = decodeItems(body)
		if len(out.Items) > 0 {
			c.store.Dispatch(store.LocalMerge{Kind: localKind, Items: out.Items})
		}
	case map[string]any:
		for k, v := range body {
			items := decodeItems(v)
			if len(items) == 0 {
				continue
			}
			c.store.Dispatch(store.LocalMerge{Kind: k, Items: items})
			if k == localKind {
				out.Items = items
			}
		}
	}

	if item, ok := decodeItem(res.Data["item"]); ok {
		out.Item = item
		c.store.Dispatch(store.LocalUpdate{Kind: localKind, Item: item})
	}
	return out
}
