package sync

import "time"

// ScopeState is the sync state machine per (kind, scope):
// Unsynced → Syncing → Synced, re-entering Syncing on every sync call.
type ScopeState int

const (
	Unsynced ScopeState = iota
	Syncing
	Synced
)

func (s ScopeState) String() string {
	switch s {
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "unsynced"
	}
}

// ScopeStatus is a snapshot of one scope's bookkeeping.
type ScopeStatus struct {
	State ScopeState

	// LastToken is the generation token of the most recently issued
	// request for this scope. A response carrying an older token folded
	// anyway (last-merge-wins); callers that care can compare tokens.
	LastToken string

	LastSyncedAt time.Time
}
