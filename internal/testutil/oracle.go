package testutil

import (
	"context"
	"sync"
)

// StaticOracle is a connectivity oracle whose answer is set by the test.
type StaticOracle struct {
	mu      sync.Mutex
	canSend bool
	checks  int
	onCheck func() bool
}

// NewStaticOracle creates an oracle reporting canSend.
func NewStaticOracle(canSend bool) *StaticOracle {
	return &StaticOracle{canSend: canSend}
}

// CanSend implements connectivity.Oracle.
func (o *StaticOracle) CanSend() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canSend
}

// CheckConnection implements connectivity.Oracle. Without an OnCheck hook
// the state never changes.
func (o *StaticOracle) CheckConnection(context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks++
	if o.onCheck == nil {
		return false
	}
	next := o.onCheck()
	changed := next != o.canSend
	o.canSend = next
	return changed
}

// Set changes the reported state.
func (o *StaticOracle) Set(canSend bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.canSend = canSend
}

// OnCheck makes CheckConnection adopt the value returned by fn.
func (o *StaticOracle) OnCheck(fn func() bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onCheck = fn
}

// Checks returns how many times CheckConnection was called.
func (o *StaticOracle) Checks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checks
}
