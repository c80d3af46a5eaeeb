package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_AllTestdataPass(t *testing.T) {
	for _, name := range []string{
		"full_replace",
		"delta_merge",
		"nested_children",
		"retry_then_deliver",
		"dead_letter_retry",
		"offline_pause",
	} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Reconcile(t *testing.T) {
	s := mustParse(t, `
name: inline
description: d
reconcile:
  mode: full
  master: [{alt: a, name: A}, {alt: b, name: B}]
  incoming: [{alt: b, name: B2}]
assertions:
  - {type: list_order, alts: [b]}
`)
	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Seq: 1, Type: EventRemoved, Alt: "a", Name: "A"}, result.Trace[0])
	assert.Equal(t, TraceEvent{Seq: 2, Type: EventUpdated, Alt: "b", Name: "B2"}, result.Trace[1])
	assert.Equal(t, []string{"b"}, result.State["list"])
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	s := mustParse(t, `
name: inline
description: d
queue:
  outcomes: [fail]
  steps:
    - enqueue: {method: POST, path: /x, payload: '{}'}
    - drain: true
assertions:
  - {type: final_state, key: pending, value: 0}
  - {type: delivered_order, paths: [/x]}
  - {type: trace_count, event: deliver, count: 1}
  - {type: final_state, key: missing, value: 0}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "pending = 1")
	assert.Contains(t, result.Errors[1], "delivered_order")
	assert.Contains(t, result.Errors[2], "not recorded")
}

func TestRun_RetryUnknownDeadLetterFails(t *testing.T) {
	s := mustParse(t, `
name: inline
description: d
queue:
  steps:
    - retry: 42
assertions:
  - {type: final_state, key: pending, value: 0}
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "deliver to occur 2 time(s)",
		Actual:   "occurred 1 time(s)",
		Trace: []TraceEvent{
			{Seq: 1, Type: EventDeliver, Method: "POST", Path: "/x", Outcome: OutcomeFail},
			{Seq: 2, Type: EventAdded, Alt: "a"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] deliver POST /x -> fail")
	assert.Contains(t, msg, "[2] added a")
}

func TestEvaluateAssertions_DeliveredOrderEmpty(t *testing.T) {
	result := NewResult()
	errs := EvaluateAssertions(result, []Assertion{{Type: AssertDeliveredOrder, Paths: []string{}}})
	assert.Empty(t, errs)
}
