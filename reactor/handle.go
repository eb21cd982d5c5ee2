package reactor

import "github.com/sagernet/sing-uv/common/x/list"

type HandleType uint8

const (
	HandleUnknown HandleType = iota
	HandleTCP
	HandlePipe
	HandleTimer
	HandlePrepare
	HandlePoll
	HandleFSEvent
)

func (t HandleType) String() string {
	switch t {
	case HandleTCP:
		return "tcp"
	case HandlePipe:
		return "pipe"
	case HandleTimer:
		return "timer"
	case HandlePrepare:
		return "prepare"
	case HandlePoll:
		return "poll"
	case HandleFSEvent:
		return "fs_event"
	default:
		return "unknown"
	}
}

const (
	handleActive uint8 = 1 << iota
	handleClosing
	handleClosed
)

type CloseCallback func(handle *Handle)

// Handle is the native record shared by every long lived watcher.
// Data is free for the owner; the uv layer stores its registry id there.
type Handle struct {
	Data          uint64
	loop          *Loop
	handleType    HandleType
	flags         uint8
	closeCallback CloseCallback
	element       *list.Element[*Handle]

	// stop detaches the type specific watcher when Close is requested.
	stop func()
	// finish runs in the closing phase right before the close callback.
	finish func()
}

func (h *Handle) init(loop *Loop, handleType HandleType) {
	*h = Handle{
		loop:       loop,
		handleType: handleType,
	}
	loop.handles.Add(1)
}

func (h *Handle) Loop() *Loop {
	return h.loop
}

func (h *Handle) Type() HandleType {
	return h.handleType
}

func (h *Handle) IsActive() bool {
	return h.flags&handleActive != 0
}

// IsClosing reports whether Close was requested, including after the close completed.
func (h *Handle) IsClosing() bool {
	return h.flags&(handleClosing|handleClosed) != 0
}

func (h *Handle) IsClosed() bool {
	return h.flags&handleClosed != 0
}

// Close requests detachment. The callback runs in the closing phase of the
// current loop iteration. Closing twice is a no-op.
func (h *Handle) Close(callback CloseCallback) {
	if h.IsClosing() {
		return
	}
	h.flags |= handleClosing
	h.closeCallback = callback
	if h.stop != nil {
		h.stop()
	}
	h.deactivate()
	h.element = h.loop.closing.PushBack(h)
}

func (h *Handle) activate() {
	if h.flags&handleActive != 0 {
		return
	}
	h.flags |= handleActive
	h.loop.activeHandles.Add(1)
}

func (h *Handle) deactivate() {
	if h.flags&handleActive == 0 {
		return
	}
	h.flags &^= handleActive
	h.loop.activeHandles.Add(-1)
}

func (h *Handle) finishClose() {
	h.element = nil
	if h.finish != nil {
		h.finish()
	}
	h.flags = h.flags&^handleClosing | handleClosed
	h.loop.handles.Add(-1)
	if h.closeCallback != nil {
		h.closeCallback(h)
	}
}

type ReqType uint8

const (
	ReqUnknown ReqType = iota
	ReqWrite
	ReqConnect
	ReqShutdown
	ReqWork
	ReqGetAddrInfo
)

func (t ReqType) String() string {
	switch t {
	case ReqWrite:
		return "write"
	case ReqConnect:
		return "connect"
	case ReqShutdown:
		return "shutdown"
	case ReqWork:
		return "work"
	case ReqGetAddrInfo:
		return "getaddrinfo"
	default:
		return "unknown"
	}
}

// Req is the native record of a one-shot operation.
type Req struct {
	Data    uint64
	loop    *Loop
	reqType ReqType
	active  bool
	cancel  func() error
}

func (r *Req) init(loop *Loop, reqType ReqType) {
	*r = Req{
		Data:    r.Data,
		loop:    loop,
		reqType: reqType,
	}
}

func (r *Req) Loop() *Loop {
	return r.loop
}

func (r *Req) Type() ReqType {
	return r.reqType
}

// IsActive reports whether the operation was submitted and its callback has not run yet.
func (r *Req) IsActive() bool {
	return r.active
}

func (r *Req) register() {
	r.active = true
	r.loop.activeReqs.Add(1)
}

func (r *Req) unregister() {
	if !r.active {
		return
	}
	r.active = false
	r.cancel = nil
	r.loop.activeReqs.Add(-1)
}
