package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoldenSnapshots(t *testing.T) {
	for _, name := range []string{"basic-sync", "force-refresh"} {
		t.Run(name, func(t *testing.T) {
			scenario := loadTestScenario(t, name)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}
