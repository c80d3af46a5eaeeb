package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/bizsync/internal/transport"
)

// ErrScripted is the failure returned by Fail outcomes.
var ErrScripted = errors.New("scripted delivery failure")

// ScriptedTransport replays a fixed sequence of delivery outcomes.
//
// Each Deliver call consumes the next outcome; once the script is exhausted
// the fallback (nil by default) is returned. Every request is recorded.
type ScriptedTransport struct {
	mu       sync.Mutex
	script   []error
	fallback error
	hook     func(ctx context.Context, req transport.Request) error
	calls    []transport.Request
}

// NewScriptedTransport creates a transport returning outcomes in order.
// A nil outcome is a success.
func NewScriptedTransport(outcomes ...error) *ScriptedTransport {
	return &ScriptedTransport{script: append([]error(nil), outcomes...)}
}

// Then appends outcomes to the script.
func (t *ScriptedTransport) Then(outcomes ...error) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, outcomes...)
	return t
}

// SetFallback sets the outcome once the script is exhausted.
func (t *ScriptedTransport) SetFallback(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = err
}

// SetHook installs a function that runs instead of the script.
func (t *ScriptedTransport) SetHook(fn func(ctx context.Context, req transport.Request) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = fn
}

// Deliver implements transport.Transport.
func (t *ScriptedTransport) Deliver(ctx context.Context, req transport.Request) error {
	t.mu.Lock()
	t.calls = append(t.calls, req)
	hook := t.hook
	var out error
	if hook == nil {
		if len(t.script) > 0 {
			out = t.script[0]
			t.script = t.script[1:]
		} else {
			out = t.fallback
		}
	}
	t.mu.Unlock()

	if hook != nil {
		return hook(ctx, req)
	}
	return out
}

// Calls returns a copy of every request delivered so far.
func (t *ScriptedTransport) Calls() []transport.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transport.Request(nil), t.calls...)
}

// Paths returns the path of every request delivered so far.
func (t *ScriptedTransport) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	for i, c := range t.calls {
		out[i] = c.Path
	}
	return out
}
