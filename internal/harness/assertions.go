package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It carries the trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Type)
		if ev.Alt != "" {
			fmt.Fprintf(&buf, " %s", ev.Alt)
		}
		if ev.Path != "" {
			fmt.Fprintf(&buf, " %s %s", ev.Method, ev.Path)
		}
		if ev.Outcome != "" {
			fmt.Fprintf(&buf, " -> %s", ev.Outcome)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// assertListOrder checks the reconciled list equals the expected alternate ids.
func assertListOrder(result *Result, a Assertion) error {
	got, _ := result.State["list"].([]string)
	if slices.Equal(got, a.Alts) {
		return nil
	}
	return &AssertionError{
		Type:     AssertListOrder,
		Expected: fmt.Sprintf("%v", a.Alts),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertTraceCount checks how many events of a type (optionally for one
// path) occurred.
func assertTraceCount(result *Result, a Assertion) error {
	n := 0
	for _, ev := range result.Trace {
		if ev.Type == a.Event && (a.Path == "" || ev.Path == a.Path) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	target := a.Event
	if a.Path != "" {
		target += " " + a.Path
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s to occur %d time(s)", target, a.Count),
		Actual:   fmt.Sprintf("occurred %d time(s)", n),
		Trace:    result.Trace,
	}
}

// assertDeliveredOrder checks the paths of successful deliveries, in order.
func assertDeliveredOrder(result *Result, a Assertion) error {
	var got []string
	for _, ev := range result.Trace {
		if ev.Type == EventDeliver && ev.Outcome == OutcomeOK {
			got = append(got, ev.Path)
		}
	}
	if slices.Equal(got, a.Paths) || (len(got) == 0 && len(a.Paths) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDeliveredOrder,
		Expected: fmt.Sprintf("%v", a.Paths),
		Actual:   fmt.Sprintf("%v", got),
		Trace:    result.Trace,
	}
}

// assertFinalState checks a final counter.
func assertFinalState(result *Result, a Assertion) error {
	v, ok := result.State[a.Key]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %d", a.Key, a.Value),
			Actual:   "not recorded",
			Trace:    result.Trace,
		}
	}
	n, ok := v.(int)
	if !ok || n != a.Value {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %d", a.Key, a.Value),
			Actual:   fmt.Sprintf("%s = %v", a.Key, v),
			Trace:    result.Trace,
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertListOrder:
			err = assertListOrder(result, a)
		case AssertTraceCount:
			err = assertTraceCount(result, a)
		case AssertDeliveredOrder:
			err = assertDeliveredOrder(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
