package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one harness run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Reconcile *ReconcileScript `yaml:"reconcile,omitempty"`
	Queue     *QueueScript     `yaml:"queue,omitempty"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Reconcile modes.
const (
	ModeFull  = "full"
	ModeDelta = "delta"
)

// ReconcileScript syncs an incoming list into a master list.
type ReconcileScript struct {
	Mode     string     `yaml:"mode"`
	Master   []ItemSpec `yaml:"master"`
	Incoming []ItemSpec `yaml:"incoming"`
}

// ItemSpec describes a test entity and its children.
type ItemSpec struct {
	Alt      string     `yaml:"alt"`
	Name     string     `yaml:"name"`
	Children []ItemSpec `yaml:"children,omitempty"`
}

// QueueScript drives a send queue against a scripted transport.
type QueueScript struct {
	// MaxAttempts overrides the dead-letter threshold when positive.
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Offline starts the run disconnected.
	Offline bool `yaml:"offline,omitempty"`

	// Outcomes are consumed by deliveries in order. Once exhausted every
	// delivery succeeds.
	Outcomes []string `yaml:"outcomes,omitempty"`

	Steps []QueueStep `yaml:"steps"`
}

// QueueStep performs exactly one action.
type QueueStep struct {
	Enqueue      *EnqueueStep `yaml:"enqueue,omitempty"`
	Drain        bool         `yaml:"drain,omitempty"`
	Connectivity string       `yaml:"connectivity,omitempty"`
	Retry        int64        `yaml:"retry,omitempty"`
}

// EnqueueStep is a request to enqueue.
type EnqueueStep struct {
	Method      string `yaml:"method"`
	Path        string `yaml:"path"`
	ContentType string `yaml:"content_type,omitempty"`
	Payload     string `yaml:"payload"`
}

// Delivery outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFail    = "fail"
	OutcomeInvalid = "invalid"
	OutcomeOffline = "offline"
)

// Connectivity states a step can switch to.
const (
	StateOnline  = "online"
	StateOffline = "offline"
)

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of list_order, trace_count, delivered_order, final_state.
	Type string `yaml:"type"`

	// Alts is the expected final list (list_order).
	Alts []string `yaml:"alts,omitempty"`

	// Event and Path select trace events (trace_count). Path is optional.
	Event string `yaml:"event,omitempty"`
	Path  string `yaml:"path,omitempty"`

	// Count is the expected number of matching events (trace_count).
	Count int `yaml:"count,omitempty"`

	// Paths is the expected order of successful deliveries (delivered_order).
	Paths []string `yaml:"paths,omitempty"`

	// Key and Value check a final state counter (final_state).
	Key   string `yaml:"key,omitempty"`
	Value int    `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertListOrder      = "list_order"
	AssertTraceCount     = "trace_count"
	AssertDeliveredOrder = "delivered_order"
	AssertFinalState     = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields and missing required fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Reconcile == nil && s.Queue == nil {
		return fmt.Errorf("reconcile or queue section is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if r := s.Reconcile; r != nil {
		if r.Mode != ModeFull && r.Mode != ModeDelta {
			return fmt.Errorf("reconcile.mode must be %q or %q, got %q", ModeFull, ModeDelta, r.Mode)
		}
		if err := validateItems("reconcile.master", r.Master); err != nil {
			return err
		}
		if err := validateItems("reconcile.incoming", r.Incoming); err != nil {
			return err
		}
	}

	if q := s.Queue; q != nil {
		if err := validateQueue(q); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateItems(field string, items []ItemSpec) error {
	for i, item := range items {
		if item.Alt == "" {
			return fmt.Errorf("%s[%d]: alt is required", field, i)
		}
		if err := validateItems(fmt.Sprintf("%s[%d].children", field, i), item.Children); err != nil {
			return err
		}
	}
	return nil
}

func validateQueue(q *QueueScript) error {
	if len(q.Steps) == 0 {
		return fmt.Errorf("queue.steps is required and must be non-empty")
	}
	for i, o := range q.Outcomes {
		switch o {
		case OutcomeOK, OutcomeFail, OutcomeInvalid, OutcomeOffline:
		default:
			return fmt.Errorf("queue.outcomes[%d]: unknown outcome %q", i, o)
		}
	}
	for i, step := range q.Steps {
		actions := 0
		if step.Enqueue != nil {
			actions++
			if step.Enqueue.Path == "" {
				return fmt.Errorf("queue.steps[%d].enqueue: path is required", i)
			}
		}
		if step.Drain {
			actions++
		}
		if step.Connectivity != "" {
			actions++
			if step.Connectivity != StateOnline && step.Connectivity != StateOffline {
				return fmt.Errorf("queue.steps[%d]: connectivity must be %q or %q", i, StateOnline, StateOffline)
			}
		}
		if step.Retry != 0 {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("queue.steps[%d]: exactly one of enqueue, drain, connectivity, retry is required", i)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertListOrder:
		if a.Alts == nil {
			return fmt.Errorf("assertions[%d]: alts is required for list_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDeliveredOrder:
		if a.Paths == nil {
			return fmt.Errorf("assertions[%d]: paths is required for delivered_order", index)
		}
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
