package harness

import "github.com/roach88/bizsync/internal/sendqueue"

// Trace event types.
const (
	EventAdded        = "added"
	EventUpdated      = "updated"
	EventRemoved      = "removed"
	EventKept         = "kept"
	EventEnqueue      = "enqueue"
	EventDeliver      = "deliver"
	EventDrain        = "drain"
	EventConnectivity = "connectivity"
	EventRetry        = "retry"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Seq      int64                  `json:"seq"`
	Type     string                 `json:"type"`
	Alt      string                 `json:"alt,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Children []string               `json:"children,omitempty"`
	EntryID  int64                  `json:"entry_id,omitempty"`
	Method   string                 `json:"method,omitempty"`
	Path     string                 `json:"path,omitempty"`
	Outcome  string                 `json:"outcome,omitempty"`
	State    string                 `json:"state,omitempty"`
	Report   *sendqueue.DrainReport `json:"report,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace lists events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds final observations: "list" (alternate ids in order),
	// "pending" and "dead_letters" (counts).
	State map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends ev with the next sequence number.
func (r *Result) record(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
