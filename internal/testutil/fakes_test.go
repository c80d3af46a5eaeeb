package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bizsync/internal/connectivity"
	"github.com/roach88/bizsync/internal/transport"
)

var (
	_ transport.Transport = (*ScriptedTransport)(nil)
	_ connectivity.Oracle = (*StaticOracle)(nil)
)

func TestScriptedTransport_ReplaysInOrder(t *testing.T) {
	tr := NewScriptedTransport(ErrScripted, nil).Then(ErrScripted)
	ctx := context.Background()

	assert.ErrorIs(t, tr.Deliver(ctx, transport.Request{Path: "/a"}), ErrScripted)
	assert.NoError(t, tr.Deliver(ctx, transport.Request{Path: "/b"}))
	assert.ErrorIs(t, tr.Deliver(ctx, transport.Request{Path: "/c"}), ErrScripted)
	assert.NoError(t, tr.Deliver(ctx, transport.Request{Path: "/d"}), "exhausted script falls back to success")

	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, tr.Paths())
	assert.Len(t, tr.Calls(), 4)
}

func TestScriptedTransport_FallbackAndHook(t *testing.T) {
	tr := NewScriptedTransport()
	boom := errors.New("boom")
	tr.SetFallback(boom)
	assert.ErrorIs(t, tr.Deliver(context.Background(), transport.Request{}), boom)

	tr.SetHook(func(context.Context, transport.Request) error { return nil })
	require.NoError(t, tr.Deliver(context.Background(), transport.Request{}))
}

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(true)
	assert.True(t, o.CanSend())
	assert.False(t, o.CheckConnection(context.Background()))
	assert.True(t, o.CanSend())

	o.OnCheck(func() bool { return false })
	assert.True(t, o.CheckConnection(context.Background()))
	assert.False(t, o.CanSend())
	assert.Equal(t, 2, o.Checks())

	o.Set(true)
	assert.True(t, o.CanSend())
}
