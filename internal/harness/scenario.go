// Package harness runs declarative cache scenarios: YAML files scripting
// server responses and local operations, with assertions over the final
// cache and golden snapshots of its canonical serialization.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one declarative cache test.
type Scenario struct {
	// Name uniquely identifies the scenario; the golden file is named
	// after it.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Kinds configures the schema; omitted kinds run on defaults.
	Kinds map[string]KindConfig `yaml:"kinds,omitempty"`

	// Steps run in order against a fresh cache.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final cache state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// KindConfig mirrors the schema fields scenarios need.
type KindConfig struct {
	HasMany      []string `yaml:"hasMany,omitempty"`
	StampField   string   `yaml:"stampField,omitempty"`
	SortField    string   `yaml:"sortField,omitempty"`
	SortDesc     bool     `yaml:"sortDesc,omitempty"`
	DefaultJoins []string `yaml:"defaultJoins,omitempty"`
}

// Step is one action; exactly one of its fields is set.
type Step struct {
	Sync    *SyncStep    `yaml:"sync,omitempty"`
	Save    *SaveStep    `yaml:"save,omitempty"`
	Destroy *DestroyStep `yaml:"destroy,omitempty"`
	Local   *LocalStep   `yaml:"local,omitempty"`
}

// SyncStep scripts one sync call: the options the client syncs with and
// the response the server hands back.
type SyncStep struct {
	Kind      string         `yaml:"kind"`
	LocalKind string         `yaml:"localKind,omitempty"`
	Filters   map[string]any `yaml:"filters,omitempty"`
	Refresh   bool           `yaml:"refresh,omitempty"`
	Inverted  bool           `yaml:"inverted,omitempty"`

	// Status defaults to 200. Response is the raw body: items, force,
	// destroyed_ids, removed_from_scope_ids, deleted_stamp.
	Status   int            `yaml:"status,omitempty"`
	Response map[string]any `yaml:"response,omitempty"`

	// ExpectOK, when set, asserts the call's outcome.
	ExpectOK *bool `yaml:"expectOk,omitempty"`
}

// SaveStep scripts one mutation.
type SaveStep struct {
	Kind     string         `yaml:"kind"`
	Record   map[string]any `yaml:"record"`
	Status   int            `yaml:"status,omitempty"`
	Response map[string]any `yaml:"response,omitempty"`
}

// DestroyStep scripts one deletion.
type DestroyStep struct {
	Kind     string         `yaml:"kind"`
	ID       any            `yaml:"id"`
	Status   int            `yaml:"status,omitempty"`
	Response map[string]any `yaml:"response,omitempty"`
}

// LocalStep applies a store-only operation, no server involved.
type LocalStep struct {
	// Op is one of merge, update, delete, clear.
	Op    string           `yaml:"op"`
	Kind  string           `yaml:"kind"`
	Items []map[string]any `yaml:"items,omitempty"`
	IDs   []any            `yaml:"ids,omitempty"`
}

// Assertion validates the final cache.
type Assertion struct {
	// Type is one of:
	// - "count": the kind holds Count records
	// - "record": the record with ID matches Expect (subset)
	// - "absent": no record with ID exists
	// - "scope": the record with ID carries Scope
	Type   string         `yaml:"type"`
	Kind   string         `yaml:"kind"`
	Count  int            `yaml:"count,omitempty"`
	ID     any            `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
	Scope  string         `yaml:"scope,omitempty"`
}

// Assertion type constants.
const (
	AssertCount  = "count"
	AssertRecord = "record"
	AssertAbsent = "absent"
	AssertScope  = "scope"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		set := 0
		for _, present := range []bool{step.Sync != nil, step.Save != nil, step.Destroy != nil, step.Local != nil} {
			if present {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("step %d must set exactly one of sync, save, destroy, local", i+1)
		}
		if step.Local != nil {
			switch step.Local.Op {
			case "merge", "update", "delete", "clear":
			default:
				return fmt.Errorf("step %d: unknown local op %q", i+1, step.Local.Op)
			}
		}
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertCount, AssertRecord, AssertAbsent, AssertScope:
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i+1, a.Type)
		}
	}
	return nil
}
