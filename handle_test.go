package uv

import (
	"testing"
	"time"

	"github.com/sagernet/sing-uv/reactor"

	"github.com/stretchr/testify/require"
)

func TestCloseTwice(t *testing.T) {
	loop := newTestLoop(t)
	timer, err := NewTimer(loop)
	require.NoError(t, err)
	var closes, errors int
	On(timer, func(event EvClose, timer *Timer) {
		closes++
	})
	On(timer, func(event EvError, timer *Timer) {
		errors++
	})
	require.True(t, timer.IsValid())
	timer.Close()
	require.False(t, timer.IsValid())
	require.True(t, timer.IsClosing())
	timer.Close()
	runLoop(t, loop)
	require.Equal(t, 1, closes)
	require.Zero(t, errors)
	timer.Release()
	require.True(t, timer.IsDestroyed())
}

func TestSelfRefUntilClose(t *testing.T) {
	loop := newTestLoop(t)
	timer, err := NewTimer(loop)
	require.NoError(t, err)
	var order []string
	On(timer, func(event EvClose, timer *Timer) {
		order = append(order, "close")
	})
	On(timer, func(event EvDestroy, timer *Timer) {
		order = append(order, "destroy")
	})
	On(timer, func(event EvTimer, timer *Timer) {
		order = append(order, "timer")
		timer.Close()
	})
	SelfRefUntil[EvClose](timer)
	require.NoError(t, timer.Start(time.Millisecond, 0))
	timer.Release()
	require.False(t, timer.IsDestroyed())
	runLoop(t, loop)
	require.Equal(t, []string{"timer", "close", "destroy"}, order)
	require.True(t, timer.IsDestroyed())
	require.Zero(t, loop.Registry().Len())
}

func TestErrorClosesHandle(t *testing.T) {
	loop := newTestLoop(t)
	prepare, err := NewPrepare(loop)
	require.NoError(t, err)
	var order []string
	On(prepare, func(event EvError, prepare *Prepare) {
		require.Equal(t, reactor.StatusConnReset, event.Status)
		require.Contains(t, event.Error(), "test")
		require.False(t, prepare.IsClosing())
		order = append(order, "error")
	})
	On(prepare, func(event EvClose, prepare *Prepare) {
		order = append(order, "close")
	})
	prepare.reportError("test", reactor.StatusConnReset)
	require.True(t, prepare.IsClosing())
	runLoop(t, loop)
	require.Equal(t, []string{"error", "close"}, order)
	prepare.Release()
}

func TestReleaseActiveHandle(t *testing.T) {
	loop := newTestLoop(t)
	prepare, err := NewPrepare(loop)
	require.NoError(t, err)
	var destroyed bool
	On(prepare, func(event EvDestroy, prepare *Prepare) {
		destroyed = true
	})
	require.NoError(t, prepare.Start())
	prepare.Release()
	require.True(t, prepare.IsClosing())
	require.False(t, destroyed)
	runLoop(t, loop)
	require.True(t, destroyed)
}

func TestPrepare(t *testing.T) {
	loop := newTestLoop(t)
	prepare, err := NewPrepare(loop)
	require.NoError(t, err)
	timer, err := NewTimer(loop)
	require.NoError(t, err)
	var prepares int
	On(prepare, func(event EvPrepare, prepare *Prepare) {
		prepares++
	})
	var ticks int
	On(timer, func(event EvTimer, timer *Timer) {
		ticks++
		if ticks == 3 {
			timer.Close()
			prepare.Close()
		}
	})
	require.NoError(t, prepare.Start())
	require.NoError(t, timer.Start(time.Millisecond, time.Millisecond))
	require.Equal(t, time.Millisecond, timer.Repeat())
	runLoop(t, loop)
	require.Equal(t, 3, ticks)
	require.GreaterOrEqual(t, prepares, 3)
	timer.Release()
	prepare.Release()
}
