package harness

import (
	"context"
	"fmt"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/schema"
	"github.com/mkuiper/recordstore/internal/store"
	"github.com/mkuiper/recordstore/internal/sync"
)

// Result is the outcome of running a scenario.
type Result struct {
	State *store.Store
	Syncs []sync.SyncResult
}

// scriptTransport replays the responses scripted in the scenario, in step
// order, regardless of path. The runner pushes each step's response just
// before driving the coordinator.
type scriptTransport struct {
	queue []sync.Result
}

func (s *scriptTransport) push(status int, body map[string]any) {
	if status == 0 {
		status = 200
	}
	s.queue = append(s.queue, sync.Result{
		OK:     status >= 200 && status < 300,
		Status: status,
		Data:   body,
	})
}

func (s *scriptTransport) pop() (sync.Result, error) {
	if len(s.queue) == 0 {
		return sync.Result{}, fmt.Errorf("scenario scripted no response for this call")
	}
	res := s.queue[0]
	s.queue = s.queue[1:]
	return res, nil
}

func (s *scriptTransport) Get(context.Context, string, map[string]any) (sync.Result, error) {
	return s.pop()
}

func (s *scriptTransport) Post(context.Context, string, map[string]any) (sync.Result, error) {
	return s.pop()
}

func (s *scriptTransport) Put(context.Context, string, map[string]any) (sync.Result, error) {
	return s.pop()
}

func (s *scriptTransport) Delete(context.Context, string, map[string]any) (sync.Result, error) {
	return s.pop()
}

// Run executes a scenario against a fresh cache and checks its assertions.
func Run(scenario *Scenario) (*Result, error) {
	cfg := schemaOf(scenario)
	st := store.New(cfg, nil)
	transport := &scriptTransport{}

	tokens := make([]string, len(scenario.Steps))
	for i := range tokens {
		tokens[i] = fmt.Sprintf("step-%03d", i+1)
	}
	c := sync.New(sync.Config{
		Store:     st,
		Transport: transport,
		Schema:    cfg,
		Tokens:    sync.NewFixedGenerator(tokens...),
	})

	result := &Result{State: st}
	ctx := context.Background()

	for i, step := range scenario.Steps {
		if err := runStep(ctx, c, st, transport, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if step.Sync != nil {
			// Token bookkeeping: record the outcome for callers.
			res := c.Status(stepLocalKind(step.Sync), step.Sync.Filters)
			result.Syncs = append(result.Syncs, sync.SyncResult{
				OK:    res.State == sync.Synced,
				Token: res.LastToken,
			})
		}
	}

	if err := applyAssertions(scenario, st.State()); err != nil {
		return nil, err
	}
	return result, nil
}

func stepLocalKind(s *SyncStep) string {
	if s.LocalKind != "" {
		return s.LocalKind
	}
	return s.Kind
}

func runStep(ctx context.Context, c *sync.Coordinator, st *store.Store, transport *scriptTransport, step Step) error {
	switch {
	case step.Sync != nil:
		s := step.Sync
		transport.push(s.Status, s.Response)
		res := c.Sync(ctx, s.Kind, sync.Options{
			Filters:   s.Filters,
			LocalKind: s.LocalKind,
			Refresh:   s.Refresh,
			Inverted:  s.Inverted,
		})
		if s.ExpectOK != nil && res.OK != *s.ExpectOK {
			return fmt.Errorf("sync %s: ok = %v, scenario expects %v", s.Kind, res.OK, *s.ExpectOK)
		}
		return nil

	case step.Save != nil:
		s := step.Save
		transport.push(s.Status, s.Response)
		c.Save(ctx, s.Kind, s.Record, sync.SaveOptions{})
		return nil

	case step.Destroy != nil:
		s := step.Destroy
		transport.push(s.Status, s.Response)
		c.Destroy(ctx, s.Kind, s.ID, sync.SaveOptions{})
		return nil

	case step.Local != nil:
		return runLocalStep(st, step.Local)
	}
	return fmt.Errorf("empty step")
}

func runLocalStep(st *store.Store, s *LocalStep) error {
	switch s.Op {
	case "merge":
		st.Dispatch(store.LocalMerge{Kind: s.Kind, Items: toRecords(s.Items)})
	case "update":
		if len(s.Items) != 1 {
			return fmt.Errorf("local update needs exactly one item")
		}
		st.Dispatch(store.LocalUpdate{Kind: s.Kind, Item: record.New(s.Items[0])})
	case "delete":
		st.Dispatch(store.LocalDelete{Kind: s.Kind, IDs: s.IDs})
	case "clear":
		st.Dispatch(store.ClearCache{Kinds: []string{s.Kind}})
	}
	return nil
}

func toRecords(items []map[string]any) []record.Record {
	out := make([]record.Record, len(items))
	for i, fields := range items {
		out[i] = record.New(fields)
	}
	return out
}

func schemaOf(scenario *Scenario) schema.Schema {
	if len(scenario.Kinds) == 0 {
		return nil
	}
	cfg := schema.Schema{}
	for name, k := range scenario.Kinds {
		cfg[name] = schema.Kind{
			Name:         name,
			HasMany:      k.HasMany,
			StampField:   k.StampField,
			SortField:    k.SortField,
			SortDesc:     k.SortDesc,
			DefaultJoins: k.DefaultJoins,
		}
	}
	return cfg
}
