package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	registry := newRegistry()
	owner := new(int)
	id := registry.Register(owner)
	require.NotZero(t, id)
	require.Same(t, owner, registry.Lookup(id))
	require.Equal(t, 1, registry.Len())

	registry.Pin(id)
	registry.Pin(id)
	require.Equal(t, 2, registry.Pins(id))
	require.Equal(t, 1, registry.Pinned())
	require.True(t, registry.Unpin(id, 1))
	require.False(t, registry.Unpin(id, 1))
	require.Zero(t, registry.Pinned())

	registry.Pin(id)
	registry.Unregister(id)
	require.Nil(t, registry.Lookup(id))
	require.Zero(t, registry.Len())
	require.Zero(t, registry.Pinned())
	registry.Pin(id)
	require.Zero(t, registry.Pins(id))
	require.NotEqual(t, id, registry.Register(owner))
}

func TestLookup(t *testing.T) {
	loop := newTestLoop(t)
	var timer Timer
	require.NoError(t, InitTimer(loop, &timer))
	timer.Data = loop.Registry().Register(&timer)
	found, loaded := Lookup[*Timer](loop, timer.Data)
	require.True(t, loaded)
	require.Same(t, &timer, found)
	_, loaded = Lookup[*Prepare](loop, timer.Data)
	require.False(t, loaded)
	loop.Registry().Unregister(timer.Data)
	timer.Close(nil)
	require.NoError(t, loop.Run(RunDefault))
}
