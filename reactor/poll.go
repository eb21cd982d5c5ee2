package reactor

import "golang.org/x/sys/unix"

type PollEvent uint8

const (
	PollReadable PollEvent = 1 << iota
	PollWritable
	PollDisconnect
	PollPriority
)

type PollCallback func(poll *Poll, status Status, events PollEvent)

// Poll watches a descriptor owned by someone else. Closing the handle does
// not close the descriptor.
type Poll struct {
	Handle
	watcher  ioWatcher
	callback PollCallback
}

func InitPoll(loop *Loop, poll *Poll, fd int) error {
	if loop.closed || fd < 0 {
		return StatusInvalid
	}
	err := unix.SetNonblock(fd, true)
	if err != nil {
		return StatusOf(err)
	}
	*poll = Poll{}
	poll.Handle.init(loop, HandlePoll)
	poll.Handle.stop = func() {
		poll.Stop()
	}
	poll.watcher.fd = fd
	poll.watcher.callback = poll.handleIO
	return nil
}

func (p *Poll) Start(events PollEvent, callback PollCallback) error {
	if callback == nil || p.IsClosing() {
		return StatusInvalid
	}
	var mask uint32
	if events&PollReadable != 0 {
		mask |= unix.EPOLLIN
	}
	if events&PollWritable != 0 {
		mask |= unix.EPOLLOUT
	}
	if events&PollDisconnect != 0 {
		mask |= unix.EPOLLRDHUP
	}
	if events&PollPriority != 0 {
		mask |= unix.EPOLLPRI
	}
	if mask == 0 {
		return p.Stop()
	}
	err := p.loop.poller.update(&p.watcher, mask)
	if err != nil {
		return StatusOf(err)
	}
	p.callback = callback
	p.activate()
	return nil
}

func (p *Poll) Stop() error {
	p.loop.poller.remove(&p.watcher)
	p.deactivate()
	return nil
}

func (p *Poll) Fileno() int {
	return p.watcher.fd
}

func (p *Poll) handleIO(events uint32) {
	if events&unix.EPOLLERR != 0 {
		p.Stop()
		p.callback(p, StatusBadFD, 0)
		return
	}
	var pollEvents PollEvent
	if events&(unix.EPOLLIN|unix.EPOLLHUP) != 0 {
		pollEvents |= PollReadable
	}
	if events&unix.EPOLLOUT != 0 {
		pollEvents |= PollWritable
	}
	if events&unix.EPOLLRDHUP != 0 {
		pollEvents |= PollDisconnect
	}
	if events&unix.EPOLLPRI != 0 {
		pollEvents |= PollPriority
	}
	p.callback(p, StatusOK, pollEvents&p.wanted())
}

func (p *Poll) wanted() PollEvent {
	var events PollEvent
	if p.watcher.events&unix.EPOLLIN != 0 {
		events |= PollReadable
	}
	if p.watcher.events&unix.EPOLLOUT != 0 {
		events |= PollWritable
	}
	if p.watcher.events&unix.EPOLLRDHUP != 0 {
		events |= PollDisconnect
	}
	if p.watcher.events&unix.EPOLLPRI != 0 {
		events |= PollPriority
	}
	return events
}
