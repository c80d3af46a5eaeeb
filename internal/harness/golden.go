package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bizsync/internal/entity"
)

// TraceSnapshot is what golden files record for a scenario.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []TraceEvent   `json:"trace"`
	State        map[string]any `json:"state,omitempty"`
}

// Snapshot returns the canonical JSON recorded in golden files.
func Snapshot(name string, result *Result) ([]byte, error) {
	return entity.MarshalCanonical(TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		State:        result.State,
	})
}

// RunWithGolden executes a scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
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
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
