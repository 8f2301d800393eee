package store

import "github.com/mkuiper/recordstore/internal/record"

// Event is a sealed store mutation. Only the event types in this package
// implement it; the marker method enables exhaustive switching in the
// reducer.
type Event interface {
	eventNode()
}

// Merge folds a sync response into a kind's collection.
//
// DeletedIDs are removed outright. RemovedFromScopeIDs lose ScopeKey from
// their FetchedScopes and are dropped only when no scope remains and the
// record is confirmed; optimistic records are never scope-evicted.
// With Force set the incoming items replace the collection wholesale;
// otherwise they are reconciled against existing records by id.
type Merge struct {
	Kind                string
	Items               []record.Record
	Force               bool
	ScopeKey            string
	DeletedIDs          []any
	RemovedFromScopeIDs []any

	// DeletedStamp advances the kind's hard-delete checkpoint. StampKind
	// overrides which kind's checkpoint it advances (scoped collections
	// share the base kind's checkpoint); empty means Kind.
	DeletedStamp any
	StampKind    string

	// ActionVersion is the server's schema/shape version for the kind.
	ActionVersion int64
}

func (Merge) eventNode() {}

// MultiMerge applies several merges as one atomic event, used by batched
// multi-resource sync so downstream readers observe a single transition.
type MultiMerge struct {
	Merges []Merge
}

func (MultiMerge) eventNode() {}

// LocalMerge reconciles items into a kind the way Merge does, but marks the
// affected records provisional and leaves scope bookkeeping untouched.
// Used for optimistic writes ahead of server confirmation.
type LocalMerge struct {
	Kind  string
	Items []record.Record
}

func (LocalMerge) eventNode() {}

// LocalCreate appends one provisional record.
type LocalCreate struct {
	Kind string
	Item record.Record
}

func (LocalCreate) eventNode() {}

// LocalUpdate merges fields into the record with the item's id (or inserts
// it), marking it provisional.
type LocalUpdate struct {
	Kind string
	Item record.Record
}

func (LocalUpdate) eventNode() {}

// LocalDelete removes records by id.
type LocalDelete struct {
	Kind string
	IDs  []any
}

func (LocalDelete) eventNode() {}

// AddRecords upserts a batch of provisional records one by one.
type AddRecords struct {
	Kind  string
	Items []record.Record
}

func (AddRecords) eventNode() {}

// ClearCache empties the named kinds and resets their stamps, forcing the
// next sync of each to be a full refresh.
type ClearCache struct {
	Kinds []string
}

func (ClearCache) eventNode() {}

// Reset restores the initial empty state. With Keep set, the listed kinds
// survive (records and deletion checkpoints); otherwise with Discard set,
// everything except the listed kinds survives.
type Reset struct {
	Keep    []string
	Discard []string
}

func (Reset) eventNode() {}
