package reactor

import (
	"container/heap"
	"time"
)

type TimerCallback func(timer *Timer)

type Timer struct {
	Handle
	callback TimerCallback
	due      time.Time
	repeat   time.Duration
	sequence uint64
	index    int
}

func InitTimer(loop *Loop, timer *Timer) error {
	if loop.closed {
		return StatusInvalid
	}
	*timer = Timer{index: -1}
	timer.Handle.init(loop, HandleTimer)
	timer.Handle.stop = timer.unschedule
	return nil
}

// Start arms the timer. A zero repeat makes it one-shot; otherwise it fires
// again every repeat after the first timeout.
func (t *Timer) Start(callback TimerCallback, timeout, repeat time.Duration) error {
	if callback == nil || t.IsClosing() {
		return StatusInvalid
	}
	if timeout < 0 {
		timeout = 0
	}
	t.unschedule()
	t.callback = callback
	t.repeat = repeat
	t.schedule(timeout)
	return nil
}

func (t *Timer) Stop() error {
	t.unschedule()
	return nil
}

// Again restarts a repeating timer using its repeat value as timeout.
func (t *Timer) Again() error {
	if t.callback == nil {
		return StatusInvalid
	}
	if t.repeat > 0 {
		t.unschedule()
		t.schedule(t.repeat)
	}
	return nil
}

func (t *Timer) SetRepeat(repeat time.Duration) {
	t.repeat = repeat
}

func (t *Timer) Repeat() time.Duration {
	return t.repeat
}

// DueIn returns the time left before the timer fires, zero if it is not armed or overdue.
func (t *Timer) DueIn() time.Duration {
	if t.index < 0 {
		return 0
	}
	due := t.due.Sub(t.loop.now)
	if due < 0 {
		return 0
	}
	return due
}

func (t *Timer) schedule(timeout time.Duration) {
	t.loop.timerCounter++
	t.sequence = t.loop.timerCounter
	t.due = t.loop.now.Add(timeout)
	heap.Push(&t.loop.timers, t)
	t.activate()
}

func (t *Timer) unschedule() {
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
	t.deactivate()
}

type timerHeap []*Timer

func (h timerHeap) Len() int {
	return len(h)
}

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].sequence < h[j].sequence
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	timer := x.(*Timer)
	timer.index = len(*h)
	*h = append(*h, timer)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	timer := old[n-1]
	old[n-1] = nil
	timer.index = -1
	*h = old[:n-1]
	return timer
}
