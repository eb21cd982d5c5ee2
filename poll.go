package uv

import (
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

// Poll watches a descriptor owned by the caller and publishes EvPoll on
// readiness. Closing the poll leaves the descriptor open.
type Poll struct {
	Handle
	native reactor.Poll
}

func NewPoll(loop *reactor.Loop, fd int) (*Poll, error) {
	poll := new(Poll)
	err := reactor.InitPoll(loop, &poll.native, fd)
	if err != nil {
		return nil, E.Cause(err, "init poll")
	}
	poll.initHandle(loop, &poll.native.Handle, poll)
	return poll, nil
}

// Start watches for events, replacing the previous set.
func (p *Poll) Start(events reactor.PollEvent) error {
	return p.native.Start(events, onPoll)
}

func (p *Poll) Stop() error {
	return p.native.Stop()
}

func (p *Poll) Fileno() int {
	return p.native.Fileno()
}

func onPoll(native *reactor.Poll, status reactor.Status, events reactor.PollEvent) {
	poll, loaded := reactor.Lookup[*Poll](native.Loop(), native.Data)
	if !loaded {
		return
	}
	if status != reactor.StatusOK {
		poll.reportError("poll", status)
		return
	}
	poll.publish(EvPoll{Events: events})
}
