// Package reactor is a single goroutine event loop over epoll. It owns the
// native records of handles and requests and reports their results through
// plain callbacks that always run on the goroutine calling Run.
package reactor

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagernet/sing-uv/common"
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/common/x/list"

	"github.com/eapache/queue"
)

type RunMode uint8

const (
	// RunDefault runs until no active handle or request remains, or Stop is called.
	RunDefault RunMode = iota
	// RunOnce polls for I/O once, blocking if nothing is pending.
	RunOnce
	// RunNoWait polls for I/O once without blocking.
	RunNoWait
)

var (
	ErrReentrant = E.New("reactor: loop is already running")
	ErrClosed    = E.New("reactor: loop is closed")
)

type Options struct {
	MaxEvents      int `yaml:"max_events"`
	ThreadPoolSize int `yaml:"thread_pool_size"`
}

const (
	DefaultMaxEvents      = 128
	DefaultThreadPoolSize = 4
)

type Loop struct {
	poller   *poller
	registry *Registry
	pool     *threadPool
	now      time.Time

	timers       timerHeap
	timerCounter uint64
	pending      list.List[func()]
	prepares     list.List[*Prepare]
	closing      list.List[*Handle]

	handles       atomic.Int64
	activeHandles atomic.Int64
	activeReqs    atomic.Int64
	iterations    atomic.Uint64
	postedTotal   atomic.Uint64

	running  bool
	closed   bool
	stopFlag atomic.Bool

	postAccess sync.Mutex
	postClosed bool
	posted     *queue.Queue
}

func New(options Options) (*Loop, error) {
	if options.MaxEvents <= 0 {
		options.MaxEvents = DefaultMaxEvents
	}
	if options.ThreadPoolSize <= 0 {
		options.ThreadPoolSize = DefaultThreadPoolSize
	}
	poller, err := newPoller(options.MaxEvents)
	if err != nil {
		return nil, E.Cause(err, "create poller")
	}
	loop := &Loop{
		poller:   poller,
		registry: newRegistry(),
		posted:   queue.New(),
		now:      time.Now(),
	}
	loop.pool = newThreadPool(loop, options.ThreadPoolSize)
	return loop, nil
}

var (
	defaultLoop     *Loop
	defaultLoopOnce sync.Once
)

// Default returns the process wide loop, creating it on first use.
func Default() *Loop {
	defaultLoopOnce.Do(func() {
		defaultLoop = common.Must1(New(Options{}))
	})
	return defaultLoop
}

func (l *Loop) Registry() *Registry {
	return l.registry
}

// Now returns the loop time cached at the start of the current iteration.
func (l *Loop) Now() time.Time {
	return l.now
}

func (l *Loop) UpdateTime() {
	l.now = time.Now()
}

// Alive reports whether the loop has active handles, active requests or
// handles waiting for their close callback.
func (l *Loop) Alive() bool {
	return l.activeHandles.Load() > 0 || l.activeReqs.Load() > 0 || !l.pending.IsEmpty() || !l.closing.IsEmpty()
}

func (l *Loop) Run(mode RunMode) error {
	if l.closed {
		return ErrClosed
	}
	if l.running {
		return ErrReentrant
	}
	l.running = true
	defer func() {
		l.running = false
	}()
	l.UpdateTime()
	alive := l.Alive()
	for alive && !l.stopFlag.Load() {
		l.iterations.Add(1)
		l.UpdateTime()
		l.runTimers()
		ranPending := l.runPending()
		l.runPrepares()
		var timeout int
		if (mode == RunOnce && !ranPending) || mode == RunDefault {
			timeout = l.backendTimeout()
		}
		_, err := l.poller.wait(timeout)
		if err != nil {
			return E.Cause(err, "poll")
		}
		l.runPosted()
		l.runClosing()
		if mode == RunOnce {
			l.UpdateTime()
			l.runTimers()
		}
		alive = l.Alive()
		if mode != RunDefault {
			break
		}
	}
	l.stopFlag.Store(false)
	return nil
}

// Stop makes Run return after the current iteration. It is safe to call from any goroutine.
func (l *Loop) Stop() {
	l.stopFlag.Store(true)
	l.postAccess.Lock()
	if !l.postClosed {
		l.poller.wakeup()
	}
	l.postAccess.Unlock()
}

// Close releases the poller and the thread pool. It fails with StatusBusy
// while any handle is not closed or any request is in flight.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	if l.running || l.handles.Load() > 0 || l.activeReqs.Load() > 0 || !l.closing.IsEmpty() {
		return StatusBusy
	}
	l.closed = true
	l.pool.close()
	l.postAccess.Lock()
	l.postClosed = true
	l.postAccess.Unlock()
	return l.poller.close()
}

func (l *Loop) backendTimeout() int {
	if l.stopFlag.Load() || !l.Alive() {
		return 0
	}
	if !l.pending.IsEmpty() || !l.closing.IsEmpty() {
		return 0
	}
	l.postAccess.Lock()
	postedLen := l.posted.Length()
	l.postAccess.Unlock()
	if postedLen > 0 {
		return 0
	}
	if len(l.timers) == 0 {
		return -1
	}
	due := l.timers[0].due.Sub(l.now)
	if due <= 0 {
		return 0
	}
	return int((due + time.Millisecond - 1) / time.Millisecond)
}

func (l *Loop) runTimers() {
	for len(l.timers) > 0 {
		timer := l.timers[0]
		if timer.due.After(l.now) {
			break
		}
		heap.Pop(&l.timers)
		if timer.repeat > 0 {
			timer.schedule(timer.repeat)
		} else {
			timer.deactivate()
		}
		timer.callback(timer)
	}
}

// feed defers callback to the pending phase of the next iteration.
func (l *Loop) feed(callback func()) {
	l.pending.PushBack(callback)
}

func (l *Loop) runPending() bool {
	if l.pending.IsEmpty() {
		return false
	}
	pending := l.pending.Swap()
	for !pending.IsEmpty() {
		pending.PopFront()()
	}
	return true
}

func (l *Loop) runPrepares() {
	for _, prepare := range l.prepares.Array() {
		if prepare.IsActive() {
			prepare.callback(prepare)
		}
	}
}

// post queues callback from any goroutine and wakes the poller.
// Callbacks posted after Close are dropped.
func (l *Loop) post(callback func()) {
	l.postAccess.Lock()
	defer l.postAccess.Unlock()
	if l.postClosed {
		return
	}
	l.posted.Add(callback)
	l.poller.wakeup()
}

func (l *Loop) runPosted() {
	l.postAccess.Lock()
	callbacks := make([]func(), 0, l.posted.Length())
	for l.posted.Length() > 0 {
		callbacks = append(callbacks, l.posted.Remove().(func()))
	}
	l.postAccess.Unlock()
	l.postedTotal.Add(uint64(len(callbacks)))
	for _, callback := range callbacks {
		callback()
	}
}

func (l *Loop) runClosing() {
	closing := l.closing.Swap()
	for !closing.IsEmpty() {
		closing.PopFront().finishClose()
	}
}

type Stats struct {
	Iterations        uint64
	Handles           int64
	ActiveHandles     int64
	ActiveReqs        int64
	PostedCompletions uint64
	WorkQueued        uint64
	WorkCompleted     uint64
	WorkCanceled      uint64
	Resources         int
	PinnedResources   int
}

// Stats returns a snapshot of the loop counters. It is safe to call from any goroutine.
func (l *Loop) Stats() Stats {
	return Stats{
		Iterations:        l.iterations.Load(),
		Handles:           l.handles.Load(),
		ActiveHandles:     l.activeHandles.Load(),
		ActiveReqs:        l.activeReqs.Load(),
		PostedCompletions: l.postedTotal.Load(),
		WorkQueued:        l.pool.queued.Load(),
		WorkCompleted:     l.pool.completed.Load(),
		WorkCanceled:      l.pool.canceled.Load(),
		Resources:         l.registry.Len(),
		PinnedResources:   l.registry.Pinned(),
	}
}
