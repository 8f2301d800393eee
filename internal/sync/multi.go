package sync

import (
	"context"

	"github.com/mkuiper/recordstore/internal/store"
)

// Resource names one kind to sync in a batched call.
type Resource struct {
	Kind    string
	Options Options
}

// SyncMany syncs several kinds in a single round trip. All responses fold
// into the store as one atomic event, so subscribers see either the state
// before the batch or after it, never a partial batch.
func (c *Coordinator) SyncMany(ctx context.Context, resources []Resource) map[string]SyncResult {
	token := c.tokens.Generate()

	type pending struct {
		kind, localKind, scopeKey string
		force                     bool
	}
	plan := make([]pending, 0, len(resources))

	payload := map[string]any{}
	for _, r := range resources {
		localKind := r.Options.LocalKind
		if localKind == "" {
			localKind = r.Kind
		}
		scopeKey := r.Options.ScopeKeyOverride
		if scopeKey == "" {
			scopeKey = ScopeKey(localKind, r.Options.Filters)
		}
		payload[r.Kind] = c.buildIndexParams(r.Kind, localKind, scopeKey, token, r.Options)
		plan = append(plan, pending{r.Kind, localKind, scopeKey, r.Options.Force || r.Options.Refresh})
		c.setState(scopeKey, Syncing, token)
	}

	results := map[string]SyncResult{}
	res, err := c.transport.Post(ctx, "multi_index", map[string]any{"resources": payload})
	if err != nil || !res.OK {
		if err != nil {
			c.logger.Warn("multi sync transport failure", "error", err)
		}
		for _, p := range plan {
			c.revertState(p.scopeKey)
			results[p.kind] = SyncResult{OK: false, Status: res.Status, Token: token}
		}
		return results
	}

	var merges []store.Merge
	for _, p := range plan {
		body := mapOf(res.Data[p.kind])
		merge, items := buildMerge(body, p.kind, p.localKind, p.scopeKey, p.force)
		if mergeWorthDispatching(merge) {
			merges = append(merges, merge)
		}
		c.setSynced(p.scopeKey, token)
		results[p.kind] = SyncResult{OK: true, Status: res.Status, Items: items, Token: token}
	}
	if len(merges) > 0 {
		c.store.Dispatch(store.MultiMerge{Merges: merges})
	}
	return results
}
