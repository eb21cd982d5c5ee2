package uv

import (
	"net/netip"

	"github.com/sagernet/sing-uv/common/buf"
	"github.com/sagernet/sing-uv/reactor"
)

// Kind identifies an event class. Every resource keeps one listener slot per kind.
type Kind uint8

const (
	KindError Kind = iota
	KindDestroy
	KindUnref
	KindClose
	KindRead
	KindWrite
	KindBufferRecycled
	KindShutdown
	KindAccept
	KindConnect
	KindBind
	KindTimer
	KindPrepare
	KindPoll
	KindFsEvent
	KindWork
	KindAfterWork
	KindDNSResult
	kindCount
)

// OneShot reports whether listeners of k are always dropped after one delivery.
func (k Kind) OneShot() bool {
	return k <= KindUnref
}

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindDestroy:
		return "destroy"
	case KindUnref:
		return "unref"
	case KindClose:
		return "close"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindBufferRecycled:
		return "buffer_recycled"
	case KindShutdown:
		return "shutdown"
	case KindAccept:
		return "accept"
	case KindConnect:
		return "connect"
	case KindBind:
		return "bind"
	case KindTimer:
		return "timer"
	case KindPrepare:
		return "prepare"
	case KindPoll:
		return "poll"
	case KindFsEvent:
		return "fs_event"
	case KindWork:
		return "work"
	case KindAfterWork:
		return "after_work"
	case KindDNSResult:
		return "dns_result"
	default:
		return "unknown"
	}
}

// Event is implemented only by the event types of this package.
type Event interface {
	Kind() Kind
	sealed()
}

type event struct{}

func (event) sealed() {}

func kindOf[E Event]() Kind {
	var zero E
	return zero.Kind()
}

type EvError struct {
	event
	Status  reactor.Status
	Message string
}

func (EvError) Kind() Kind { return KindError }

func (e EvError) Error() string {
	return e.Message
}

func (e EvError) Unwrap() error {
	return e.Status
}

// EvDestroy is the last event of a resource.
type EvDestroy struct{ event }

func (EvDestroy) Kind() Kind { return KindDestroy }

// EvUnref is published every time a caller reference is released.
type EvUnref struct{ event }

func (EvUnref) Kind() Kind { return KindUnref }

type EvClose struct{ event }

func (EvClose) Kind() Kind { return KindClose }

// EvRead carries bytes read into the stream's reusable read buffer.
// Data is only valid during the callback.
type EvRead struct {
	event
	Data []byte
}

func (EvRead) Kind() Kind { return KindRead }

// EvWrite reports that one queued write completed.
type EvWrite struct{ event }

func (EvWrite) Kind() Kind { return KindWrite }

// EvBufferRecycled hands a buffer passed to WriteAsync back to the caller.
type EvBufferRecycled struct {
	event
	Buffer *buf.Buffer
}

func (EvBufferRecycled) Kind() Kind { return KindBufferRecycled }

type EvShutdown struct{ event }

func (EvShutdown) Kind() Kind { return KindShutdown }

// EvAccept carries a new, initialized client holding one reference owned by
// the listener. Release it, or pin it with SelfRefUntil, once wired. A client
// no listener of the matching type received is closed and released.
type EvAccept[S any] struct {
	event
	Client S
}

func (EvAccept[S]) Kind() Kind { return KindAccept }

type EvConnect struct{ event }

func (EvConnect) Kind() Kind { return KindConnect }

type EvBind struct{ event }

func (EvBind) Kind() Kind { return KindBind }

type EvTimer struct{ event }

func (EvTimer) Kind() Kind { return KindTimer }

type EvPrepare struct{ event }

func (EvPrepare) Kind() Kind { return KindPrepare }

type EvPoll struct {
	event
	Events reactor.PollEvent
}

func (EvPoll) Kind() Kind { return KindPoll }

// EvFsEvent reports a change below the watched path. Path is relative to
// the watched directory, or the watched file name itself.
type EvFsEvent struct {
	event
	Path   string
	Events reactor.FSEventType
	Status reactor.Status
}

func (EvFsEvent) Kind() Kind { return KindFsEvent }

// EvWork carries the result of the work function. It is delivered on the loop.
type EvWork[T any] struct {
	event
	Value T
	Err   error
}

func (EvWork[T]) Kind() Kind { return KindWork }

type EvAfterWork struct {
	event
	Status reactor.Status
}

func (EvAfterWork) Kind() Kind { return KindAfterWork }

type EvDNSResult struct {
	event
	Host  string
	Addrs []netip.Addr
}

func (EvDNSResult) Kind() Kind { return KindDNSResult }
