package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/store"
)

// SnapshotState serializes a cache snapshot as canonical JSON: collections
// with their per-record metadata, plus any deletion checkpoints. Canonical
// encoding makes the bytes deterministic, so snapshots diff cleanly.
func SnapshotState(st *store.State) ([]byte, error) {
	collections := map[string]any{}
	stamps := map[string]any{}
	for _, kind := range st.Kinds() {
		collections[kind] = st.Collection(kind)
		if s := st.DeletedStamp(kind); s != nil {
			stamps[kind] = s
		}
	}
	snap := map[string]any{"collections": collections}
	if len(stamps) > 0 {
		snap["deleted_stamps"] = stamps
	}
	return record.MarshalCanonical(snap)
}

// RunWithGolden executes a scenario and compares the final cache snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	snapshot, err := SnapshotState(result.State.State())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}
