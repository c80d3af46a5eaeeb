package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/bizsync/internal/entity"
	"github.com/roach88/bizsync/internal/reconcile"
	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
	"github.com/roach88/bizsync/internal/testutil"
	"github.com/roach88/bizsync/internal/transport"
)

// Item is the entity type scenarios reconcile.
type Item struct {
	entity.Base
	Name     string  `json:"name"`
	Children []*Item `json:"children,omitempty"`
}

// itemMerger syncs an Item's name and, in full-replace mode, its children.
func itemMerger() *reconcile.Merger[*Item] {
	m := &reconcile.Merger[*Item]{
		Kind: "item",
		New:  func() *Item { return &Item{} },
		CopyFields: func(dst, src *Item) {
			dst.Name = src.Name
		},
	}
	m.MergeChildren = func(v *reconcile.Visited, dst, src *Item) error {
		children, _, err := m.SyncList(v, dst.Children, src.Children)
		if err != nil {
			return err
		}
		dst.Children = children
		return nil
	}
	return m
}

func buildItems(specs []ItemSpec) []*Item {
	items := make([]*Item, 0, len(specs))
	for _, s := range specs {
		items = append(items, &Item{
			Base:     entity.Base{AltID: s.Alt},
			Name:     s.Name,
			Children: buildItems(s.Children),
		})
	}
	return items
}

func childAlts(it *Item) []string {
	if len(it.Children) == 0 {
		return nil
	}
	alts := make([]string, len(it.Children))
	for i, c := range it.Children {
		alts[i] = c.AltID
	}
	return alts
}

// Harness executes one scenario.
type Harness struct {
	clock  *testutil.DeterministicClock
	logger *slog.Logger
	result *Result
}

// Run executes a scenario and returns its result.
//
// Execution flow:
// 1. Reconcile the master and incoming lists, if present
// 2. Run the queue steps against a fresh in-memory store, if present
// 3. Evaluate assertions
//
// An error is returned only when the scenario cannot be executed.
// Assertion failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		clock:  testutil.NewDeterministicClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		result: NewResult(),
	}
	ctx := context.Background()

	if scenario.Reconcile != nil {
		if err := h.runReconcile(scenario.Reconcile); err != nil {
			return nil, fmt.Errorf("failed to reconcile: %w", err)
		}
	}
	if scenario.Queue != nil {
		if err := h.runQueue(ctx, scenario.Queue); err != nil {
			return nil, fmt.Errorf("failed to run queue: %w", err)
		}
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func (h *Harness) runReconcile(script *ReconcileScript) error {
	var opts []reconcile.ListOption[*Item]
	if script.Mode == ModeDelta {
		opts = append(opts, reconcile.Delta[*Item]())
	}

	out, res, err := itemMerger().SyncList(reconcile.NewVisited(),
		buildItems(script.Master), buildItems(script.Incoming), opts...)
	if err != nil {
		return err
	}

	for _, it := range res.Removed {
		h.result.record(TraceEvent{Type: EventRemoved, Alt: it.AltID, Name: it.Name})
	}

	updated := make(map[*Item]bool, len(res.Updated))
	for _, it := range res.Updated {
		updated[it] = true
	}
	added := make(map[*Item]bool, len(res.Added))
	for _, it := range res.Added {
		added[it] = true
	}

	list := make([]string, 0, len(out))
	for _, it := range out {
		ev := TraceEvent{Type: EventKept, Alt: it.AltID, Name: it.Name, Children: childAlts(it)}
		switch {
		case added[it]:
			ev.Type = EventAdded
		case updated[it]:
			ev.Type = EventUpdated
		}
		h.result.record(ev)
		list = append(list, it.AltID)
	}
	h.result.State["list"] = list
	return nil
}

// scriptedDelivery replays outcomes and records each delivery.
type scriptedDelivery struct {
	mu       sync.Mutex
	outcomes []string
	oracle   *testutil.StaticOracle
	result   *Result
}

func (d *scriptedDelivery) deliver(_ context.Context, req transport.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	outcome := OutcomeOK
	if len(d.outcomes) > 0 {
		outcome, d.outcomes = d.outcomes[0], d.outcomes[1:]
	}
	d.result.record(TraceEvent{
		Type:    EventDeliver,
		Method:  req.Method,
		Path:    req.Path,
		Outcome: outcome,
	})

	switch outcome {
	case OutcomeFail:
		return testutil.ErrScripted
	case OutcomeInvalid:
		return fmt.Errorf("%w: scripted", transport.ErrInvalidPayload)
	case OutcomeOffline:
		d.oracle.Set(false)
		return fmt.Errorf("scripted link loss: %w", testutil.ErrScripted)
	}
	return nil
}

func (h *Harness) runQueue(ctx context.Context, script *QueueScript) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	oracle := testutil.NewStaticOracle(!script.Offline)
	delivery := &scriptedDelivery{
		outcomes: append([]string(nil), script.Outcomes...),
		oracle:   oracle,
		result:   h.result,
	}

	opts := []sendqueue.Option{
		sendqueue.WithLogger(h.logger),
		sendqueue.WithClock(h.clock.Now),
	}
	if script.MaxAttempts > 0 {
		opts = append(opts, sendqueue.WithMaxAttempts(script.MaxAttempts))
	}
	svc := sendqueue.New(st, transport.Func(delivery.deliver), oracle, opts...)

	for i, step := range script.Steps {
		if err := h.runStep(ctx, svc, oracle, step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}

	pending, err := st.CountQueueEntries(ctx)
	if err != nil {
		return err
	}
	dead, err := st.CountDeadLetters(ctx)
	if err != nil {
		return err
	}
	h.result.State["pending"] = pending
	h.result.State["dead_letters"] = dead
	return nil
}

func (h *Harness) runStep(ctx context.Context, svc *sendqueue.Service, oracle *testutil.StaticOracle, step QueueStep) error {
	switch {
	case step.Enqueue != nil:
		e, err := svc.Enqueue(ctx, sendqueue.Request{
			Method:      step.Enqueue.Method,
			Path:        step.Enqueue.Path,
			ContentType: step.Enqueue.ContentType,
			Payload:     []byte(step.Enqueue.Payload),
		})
		if err != nil {
			return err
		}
		h.result.record(TraceEvent{Type: EventEnqueue, EntryID: e.ID, Method: e.Method, Path: e.Path})

	case step.Drain:
		report, err := svc.DrainOnce(ctx)
		if err != nil {
			return err
		}
		h.result.record(TraceEvent{Type: EventDrain, Report: &report})

	case step.Connectivity != "":
		oracle.Set(step.Connectivity == StateOnline)
		h.result.record(TraceEvent{Type: EventConnectivity, State: step.Connectivity})

	case step.Retry != 0:
		e, err := svc.Retry(ctx, step.Retry)
		if err != nil {
			return err
		}
		h.result.record(TraceEvent{Type: EventRetry, EntryID: e.ID, Method: e.Method, Path: e.Path})
	}
	return nil
}
