package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Prober observes the current connection state.
type Prober func(ctx context.Context) (State, error)

// Monitor implements Oracle over a Prober, keeping the last observed state.
// The initial state is Unknown, so nothing is sent before the first check.
type Monitor struct {
	probe  Prober
	logger *slog.Logger

	state atomic.Int32

	mu        sync.Mutex
	checkedAt time.Time
	now       func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the logger for state transitions.
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithClock overrides the time source used for CheckedAt.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithInitialState seeds the state before the first probe.
func WithInitialState(s State) MonitorOption {
	return func(m *Monitor) {
		m.state.Store(int32(s))
	}
}

// NewMonitor creates a Monitor over probe.
func NewMonitor(probe Prober, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		probe:  probe,
		logger: slog.Default(),
		now:    time.Now,
	}
	m.state.Store(int32(Unknown))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the last observed state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// CanSend reports whether the last observed state permits delivery.
func (m *Monitor) CanSend() bool {
	return CanSend(m.State())
}

// CheckedAt returns when the state was last probed.
func (m *Monitor) CheckedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkedAt
}

// Set records s as observed and reports whether it changed.
func (m *Monitor) Set(s State) bool {
	prev := State(m.state.Swap(int32(s)))

	m.mu.Lock()
	m.checkedAt = m.now()
	m.mu.Unlock()

	if prev != s {
		m.logger.Info("connection state changed",
			"from", prev.String(),
			"to", s.String(),
			"can_send", CanSend(s))
		return true
	}
	return false
}

// CheckConnection probes and reports whether the state changed.
// A probe error is recorded as NotConnected.
func (m *Monitor) CheckConnection(ctx context.Context) bool {
	s, err := m.probe(ctx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", "error", err)
		s = NotConnected
	}
	return m.Set(s)
}

// HTTPProber returns a Prober that issues a HEAD request to url. Any
// response means reachable and is reported as link; a transport error
// means NotConnected.
func HTTPProber(client *http.Client, url string, link State) Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) (State, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return NotConnected, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return NotConnected, err
		}
		resp.Body.Close()
		return link, nil
	}
}

// Static returns a Prober that always reports s.
func Static(s State) Prober {
	return func(context.Context) (State, error) {
		return s, nil
	}
}
