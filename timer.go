package uv

import (
	"time"

	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

// Timer publishes EvTimer after a timeout and then every repeat interval.
type Timer struct {
	Handle
	native reactor.Timer
}

func NewTimer(loop *reactor.Loop) (*Timer, error) {
	timer := new(Timer)
	err := reactor.InitTimer(loop, &timer.native)
	if err != nil {
		return nil, E.Cause(err, "init timer")
	}
	timer.initHandle(loop, &timer.native.Handle, timer)
	return timer, nil
}

// Start arms the timer. A zero repeat fires once.
func (t *Timer) Start(timeout, repeat time.Duration) error {
	return t.native.Start(onTimer, timeout, repeat)
}

func (t *Timer) Stop() error {
	return t.native.Stop()
}

// Again rearms a repeating timer with its repeat interval.
func (t *Timer) Again() error {
	return t.native.Again()
}

func (t *Timer) SetRepeat(repeat time.Duration) {
	t.native.SetRepeat(repeat)
}

func (t *Timer) Repeat() time.Duration {
	return t.native.Repeat()
}

// DueIn returns the time left before the timer fires, zero when stopped.
func (t *Timer) DueIn() time.Duration {
	return t.native.DueIn()
}

func onTimer(native *reactor.Timer) {
	if timer, loaded := reactor.Lookup[*Timer](native.Loop(), native.Data); loaded {
		timer.publish(EvTimer{})
	}
}
