package reactor

import (
	"net/netip"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueWork(t *testing.T) {
	loop := newTestLoop(t)
	var (
		ran    atomic.Int32
		after  []Status
		reqs   = make([]WorkReq, 8)
		worker = func(req *WorkReq) {
			ran.Add(1)
		}
	)
	for index := range reqs {
		require.NoError(t, QueueWork(loop, &reqs[index], worker, func(req *WorkReq, status Status) {
			after = append(after, status)
		}))
	}
	require.Equal(t, StatusBusy, QueueWork(loop, &reqs[0], worker, nil))
	require.Equal(t, StatusInvalid, QueueWork(loop, new(WorkReq), nil, nil))
	require.True(t, loop.Alive())
	require.NoError(t, loop.Run(RunDefault))
	require.EqualValues(t, len(reqs), ran.Load())
	require.Len(t, after, len(reqs))
	for _, status := range after {
		require.Equal(t, StatusOK, status)
	}
	stats := loop.Stats()
	require.EqualValues(t, len(reqs), stats.WorkQueued)
	require.EqualValues(t, len(reqs), stats.WorkCompleted)
}

func TestCancelWork(t *testing.T) {
	loop, err := New(Options{ThreadPoolSize: 1})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, loop.Close())
	}()
	release := make(chan struct{})
	started := make(chan struct{})
	var blocking, queued WorkReq
	var statuses []Status
	require.NoError(t, QueueWork(loop, &blocking, func(*WorkReq) {
		close(started)
		<-release
	}, func(req *WorkReq, status Status) {
		statuses = append(statuses, status)
	}))
	<-started
	var queuedRan atomic.Bool
	require.NoError(t, QueueWork(loop, &queued, func(*WorkReq) {
		queuedRan.Store(true)
	}, func(req *WorkReq, status Status) {
		statuses = append(statuses, status)
		close(release)
	}))
	require.Equal(t, StatusBusy, loop.Cancel(&blocking.Req))
	require.NoError(t, loop.Cancel(&queued.Req))
	require.Equal(t, StatusBusy, loop.Cancel(&queued.Req))
	require.NoError(t, loop.Run(RunDefault))
	require.Equal(t, []Status{StatusCanceled, StatusOK}, statuses)
	require.False(t, queuedRan.Load())
	require.Equal(t, StatusInvalid, loop.Cancel(&queued.Req))
	require.EqualValues(t, 1, loop.Stats().WorkCanceled)
}

func TestGetAddrInfo(t *testing.T) {
	loop := newTestLoop(t)
	var req AddrInfoReq
	var result []netip.Addr
	var resultStatus Status
	require.NoError(t, GetAddrInfo(loop, &req, func(req *AddrInfoReq, status Status, addrs []netip.Addr) {
		require.Equal(t, "127.0.0.1", req.Host())
		resultStatus = status
		result = addrs
	}, "127.0.0.1", &AddrInfoHints{IPv4Only: true}))
	require.Equal(t, StatusInvalid, GetAddrInfo(loop, new(AddrInfoReq), func(*AddrInfoReq, Status, []netip.Addr) {}, "", nil))
	require.NoError(t, loop.Run(RunDefault))
	require.Equal(t, StatusOK, resultStatus)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("127.0.0.1")}, result)
}

func TestGetAddrInfoNotFound(t *testing.T) {
	loop := newTestLoop(t)
	var req AddrInfoReq
	var resultStatus Status
	require.NoError(t, GetAddrInfo(loop, &req, func(req *AddrInfoReq, status Status, addrs []netip.Addr) {
		resultStatus = status
		require.Empty(t, addrs)
	}, "does-not-exist.onion", nil))
	require.NoError(t, loop.Run(RunDefault))
	require.Less(t, resultStatus, StatusOK)
}
