package reactor

import (
	"encoding/binary"
	"unsafe"

	E "github.com/sagernet/sing-uv/common/exceptions"

	"golang.org/x/sys/unix"
)

const wakeupID = 0

// ioWatcher is one fd registration. The epoll data word carries the
// registration id instead of the fd, so events for a watcher removed
// earlier in the same batch are dropped instead of reaching a reused fd.
type ioWatcher struct {
	fd       int
	id       uint64
	events   uint32
	callback func(events uint32)
}

type poller struct {
	epollFD  int
	eventFD  int
	events   []unix.EpollEvent
	watchers map[uint64]*ioWatcher
	counter  uint64
}

func newPoller(maxEvents int) (*poller, error) {
	epollFD, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epollFD)
		return nil, err
	}
	wakeEvent := &unix.EpollEvent{Events: unix.EPOLLIN}
	*(*uint64)(unsafe.Pointer(&wakeEvent.Fd)) = wakeupID
	err = unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, eventFD, wakeEvent)
	if err != nil {
		unix.Close(eventFD)
		unix.Close(epollFD)
		return nil, err
	}
	return &poller{
		epollFD:  epollFD,
		eventFD:  eventFD,
		events:   make([]unix.EpollEvent, maxEvents),
		watchers: make(map[uint64]*ioWatcher),
	}, nil
}

// start adds events to the interest set of w.
func (p *poller) start(w *ioWatcher, events uint32) error {
	return p.update(w, w.events|events)
}

// stop removes events from the interest set of w. A watcher left with no
// events is removed from epoll so hangups on idle fds do not spin the loop.
func (p *poller) stop(w *ioWatcher, events uint32) error {
	return p.update(w, w.events&^events)
}

func (p *poller) update(w *ioWatcher, events uint32) error {
	if events == w.events {
		return nil
	}
	if events == 0 {
		p.remove(w)
		return nil
	}
	event := &unix.EpollEvent{Events: events}
	if w.id == 0 {
		p.counter++
		w.id = p.counter
		*(*uint64)(unsafe.Pointer(&event.Fd)) = w.id
		err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_ADD, w.fd, event)
		if err != nil {
			w.id = 0
			return err
		}
		p.watchers[w.id] = w
	} else {
		*(*uint64)(unsafe.Pointer(&event.Fd)) = w.id
		err := unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_MOD, w.fd, event)
		if err != nil {
			return err
		}
	}
	w.events = events
	return nil
}

func (p *poller) remove(w *ioWatcher) {
	if w.id != 0 {
		unix.EpollCtl(p.epollFD, unix.EPOLL_CTL_DEL, w.fd, nil)
		delete(p.watchers, w.id)
		w.id = 0
	}
	w.events = 0
}

// wait blocks for at most timeout milliseconds, -1 meaning forever, and
// dispatches every ready watcher.
func (p *poller) wait(timeout int) (int, error) {
	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epollFD, p.events, timeout)
		if err != unix.EINTR {
			break
		}
		timeout = 0
	}
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		event := p.events[i]
		id := *(*uint64)(unsafe.Pointer(&event.Fd))
		if id == wakeupID {
			p.drainWakeup()
			continue
		}
		w, loaded := p.watchers[id]
		if !loaded {
			continue
		}
		events := event.Events
		if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			events |= w.events & (unix.EPOLLIN | unix.EPOLLOUT)
		}
		w.callback(events)
	}
	return n, nil
}

func (p *poller) wakeup() {
	var value [8]byte
	binary.NativeEndian.PutUint64(value[:], 1)
	unix.Write(p.eventFD, value[:])
}

func (p *poller) drainWakeup() {
	var value [8]byte
	unix.Read(p.eventFD, value[:])
}

func (p *poller) close() error {
	for _, w := range p.watchers {
		w.id = 0
		w.events = 0
	}
	p.watchers = nil
	return E.Errors(
		statusError(unix.Close(p.eventFD)),
		statusError(unix.Close(p.epollFD)),
	)
}
