package store

import (
	"log/slog"
	"sync"

	"github.com/mkuiper/recordstore/internal/schema"
)

// Store is the single-writer home of the normalized cache.
//
// All mutation flows through Dispatch, which applies exactly one event at a
// time and swaps in the resulting immutable snapshot. Reads never block and
// never mutate: State() hands out the current snapshot, and a reader keeps
// seeing that snapshot consistently no matter how many events land after.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine; events serialize on an internal
//     mutex, equivalent to a single-writer append-only log of merge events
//   - State(): safe from any goroutine
//   - Subscribe(): safe from any goroutine
type Store struct {
	mu     sync.Mutex
	state  *State
	schema schema.Schema
	logger *slog.Logger
	subs   []chan struct{}
}

// New creates an empty store. A nil logger falls back to slog.Default().
func New(cfg schema.Schema, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:  NewState(),
		schema: cfg,
		logger: logger,
	}
}

// Schema returns the store's per-kind configuration.
func (s *Store) Schema() schema.Schema {
	return s.schema
}

// State returns the current snapshot.
func (s *Store) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies one event atomically. Events that change nothing leave
// the current snapshot in place and notify nobody.
func (s *Store) Dispatch(ev Event) {
	s.mu.Lock()
	prev := s.state
	next := reduce(prev, s.schema, ev)
	s.state = next
	subs := s.subs
	s.mu.Unlock()

	if next == prev {
		return
	}
	s.logger.Debug("store event applied", "event", eventName(ev))
	for _, ch := range subs {
		// Coalesced: a pending notification already covers this change.
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel that receives a (coalesced) signal after
// every state change. Intended for UI binding layers; the engine itself
// never blocks on it.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func eventName(ev Event) string {
	switch ev.(type) {
	case Merge:
		return "merge"
	case MultiMerge:
		return "multi_merge"
	case LocalMerge:
		return "local_merge"
	case LocalCreate:
		return "local_create"
	case LocalUpdate:
		return "local_update"
	case LocalDelete:
		return "local_delete"
	case AddRecords:
		return "add_records"
	case ClearCache:
		return "clear_cache"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}
