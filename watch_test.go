package uv

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagernet/sing-uv/reactor"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPoll(t *testing.T) {
	loop := newTestLoop(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	poll, err := NewPoll(loop, fds[0])
	require.NoError(t, err)
	require.Equal(t, fds[0], poll.Fileno())
	var seen []reactor.PollEvent
	On(poll, func(event EvPoll, poll *Poll) {
		seen = append(seen, event.Events)
		if event.Events&reactor.PollWritable != 0 {
			_, err := unix.Write(fds[1], []byte{1})
			require.NoError(t, err)
			require.NoError(t, poll.Start(reactor.PollReadable))
			return
		}
		poll.Close()
	})
	require.NoError(t, poll.Start(reactor.PollWritable))
	runLoop(t, loop)
	require.Equal(t, []reactor.PollEvent{reactor.PollWritable, reactor.PollReadable}, seen)
	poll.Release()
	require.True(t, poll.IsDestroyed())
}

func TestPollInvalid(t *testing.T) {
	loop := newTestLoop(t)
	poll, err := NewPoll(loop, -1)
	require.Error(t, err)
	require.Nil(t, poll)
	require.Zero(t, loop.Registry().Len())
}

func TestFsEvent(t *testing.T) {
	loop := newTestLoop(t)
	dir := t.TempDir()
	watch, err := NewFsEvent(loop)
	require.NoError(t, err)
	require.ErrorIs(t, watch.Start("", 0), ErrEmptyPath)
	var (
		paths  []string
		events reactor.FSEventType
	)
	On(watch, func(event EvFsEvent, watch *FsEvent) {
		require.Equal(t, reactor.StatusOK, event.Status)
		paths = append(paths, event.Path)
		events |= event.Events
		if events&reactor.FSChange != 0 {
			watch.Close()
		}
	})
	require.NoError(t, watch.Start(dir, 0))
	require.Equal(t, dir, watch.Path())

	timer, err := NewTimer(loop)
	require.NoError(t, err)
	On(timer, func(event EvTimer, timer *Timer) {
		timer.Close()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "watched.txt"), []byte("change"), 0o644))
	})
	require.NoError(t, timer.Start(10*time.Millisecond, 0))
	runLoop(t, loop)
	require.Contains(t, paths, "watched.txt")
	require.NotZero(t, events&reactor.FSRename)
	require.NotZero(t, events&reactor.FSChange)
	watch.Release()
	timer.Release()
	require.Zero(t, loop.Registry().Len())
}

func TestTimerAgain(t *testing.T) {
	loop := newTestLoop(t)
	timer, err := NewTimer(loop)
	require.NoError(t, err)
	require.Error(t, timer.Again())
	var ticks int
	On(timer, func(event EvTimer, timer *Timer) {
		ticks++
		if ticks == 1 {
			timer.SetRepeat(time.Millisecond)
			require.NoError(t, timer.Again())
			require.NotZero(t, timer.DueIn())
			return
		}
		require.NoError(t, timer.Stop())
		require.Zero(t, timer.DueIn())
		timer.Close()
	})
	require.NoError(t, timer.Start(time.Millisecond, 0))
	runLoop(t, loop)
	require.Equal(t, 2, ticks)
	timer.Release()
}
