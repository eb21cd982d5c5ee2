package reactor

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const (
	workQueued int32 = iota
	workRunning
	workDone
	workCanceled
)

// threadPool runs blocking work on goroutines, at most size at a time.
// Results travel back to the loop through the posted completion queue.
type threadPool struct {
	loop      *Loop
	ctx       context.Context
	cancel    context.CancelFunc
	semaphore *semaphore.Weighted
	wg        sync.WaitGroup
	queued    atomic.Uint64
	completed atomic.Uint64
	canceled  atomic.Uint64
}

func newThreadPool(loop *Loop, size int) *threadPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &threadPool{
		loop:      loop,
		ctx:       ctx,
		cancel:    cancel,
		semaphore: semaphore.NewWeighted(int64(size)),
	}
}

// submit runs work on the pool and done on the loop. If state is moved from
// queued to canceled before work starts, work never runs and the canceller
// is responsible for reporting.
func (p *threadPool) submit(state *atomic.Int32, work func(ctx context.Context), done func(status Status)) {
	state.Store(workQueued)
	p.queued.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.semaphore.Acquire(p.ctx, 1)
		if err != nil {
			if state.CompareAndSwap(workQueued, workCanceled) {
				p.canceled.Add(1)
				p.loop.post(func() {
					done(StatusCanceled)
				})
			}
			return
		}
		if !state.CompareAndSwap(workQueued, workRunning) {
			p.semaphore.Release(1)
			return
		}
		work(p.ctx)
		p.semaphore.Release(1)
		state.Store(workDone)
		p.completed.Add(1)
		p.loop.post(func() {
			done(StatusOK)
		})
	}()
}

// cancel marks a queued item canceled and defers done with StatusCanceled.
// Running or finished items return StatusBusy.
func (p *threadPool) cancelWork(state *atomic.Int32, done func(status Status)) error {
	if !state.CompareAndSwap(workQueued, workCanceled) {
		return StatusBusy
	}
	p.canceled.Add(1)
	p.loop.feed(func() {
		done(StatusCanceled)
	})
	return nil
}

func (p *threadPool) close() {
	p.cancel()
	p.wg.Wait()
}

type (
	WorkCallback      func(req *WorkReq)
	AfterWorkCallback func(req *WorkReq, status Status)
)

type WorkReq struct {
	Req
	state atomic.Int32
}

// QueueWork runs work on the thread pool and after on the loop once work
// returned or was canceled. work must not touch loop state.
func QueueWork(loop *Loop, req *WorkReq, work WorkCallback, after AfterWorkCallback) error {
	if work == nil || loop.closed {
		return StatusInvalid
	}
	if req.IsActive() {
		return StatusBusy
	}
	req.Req.init(loop, ReqWork)
	req.register()
	done := func(status Status) {
		req.unregister()
		if after != nil {
			after(req, status)
		}
	}
	req.cancel = func() error {
		return loop.pool.cancelWork(&req.state, done)
	}
	loop.pool.submit(&req.state, func(context.Context) {
		work(req)
	}, done)
	return nil
}

type AddrInfoHints struct {
	IPv4Only bool
}

type AddrInfoCallback func(req *AddrInfoReq, status Status, addrs []netip.Addr)

type AddrInfoReq struct {
	Req
	state atomic.Int32
	host  string
}

func (r *AddrInfoReq) Host() string {
	return r.host
}

// GetAddrInfo resolves host on the thread pool with the system resolver.
func GetAddrInfo(loop *Loop, req *AddrInfoReq, callback AddrInfoCallback, host string, hints *AddrInfoHints) error {
	if callback == nil || host == "" || loop.closed {
		return StatusInvalid
	}
	if req.IsActive() {
		return StatusBusy
	}
	network := "ip"
	if hints != nil && hints.IPv4Only {
		network = "ip4"
	}
	req.Req.init(loop, ReqGetAddrInfo)
	req.host = host
	req.register()
	var (
		addrs     []netip.Addr
		lookupErr error
	)
	done := func(status Status) {
		req.unregister()
		if status == StatusOK && lookupErr != nil {
			status = StatusOf(lookupErr)
		}
		if status != StatusOK {
			addrs = nil
		}
		callback(req, status, addrs)
	}
	req.cancel = func() error {
		return loop.pool.cancelWork(&req.state, done)
	}
	loop.pool.submit(&req.state, func(ctx context.Context) {
		addrs, lookupErr = net.DefaultResolver.LookupNetIP(ctx, network, host)
		for i := range addrs {
			addrs[i] = addrs[i].Unmap()
		}
	}, done)
	return nil
}

// Cancel cancels a request that has not started yet. Only work and address
// lookups can be canceled; its callback then runs with StatusCanceled.
func (l *Loop) Cancel(req *Req) error {
	if !req.active || req.cancel == nil {
		return StatusInvalid
	}
	return req.cancel()
}
