package uv

import (
	"github.com/sagernet/sing-uv/reactor"
)

type handleOwner interface {
	handle() *Handle
}

// Handle is a resource with a close protocol. Any published EvError closes
// the handle once the error listeners returned.
type Handle struct {
	Resource
	nativeHandle *reactor.Handle
	closeHooks   []func()
}

func (h *Handle) initHandle(loop *reactor.Loop, native *reactor.Handle, owner any) {
	h.Resource.init(loop, owner)
	h.nativeHandle = native
	native.Data = h.id
	h.detached = native.IsClosed
	h.abandon = h.Close
	h.after[KindError] = append(h.after[KindError], h.Close)
}

func (h *Handle) handle() *Handle {
	return h
}

func (h *Handle) Type() reactor.HandleType {
	return h.nativeHandle.Type()
}

// IsValid reports false as soon as Close was requested.
func (h *Handle) IsValid() bool {
	return !h.destroyed && !h.nativeHandle.IsClosing()
}

func (h *Handle) IsActive() bool {
	return h.nativeHandle.IsActive()
}

func (h *Handle) IsClosing() bool {
	return h.nativeHandle.IsClosing()
}

// Close requests detachment from the loop. EvClose is published once the
// loop confirms. Calling Close again is a no-op.
func (h *Handle) Close() {
	if h.nativeHandle.IsClosing() {
		return
	}
	for _, hook := range h.closeHooks {
		hook()
	}
	h.nativeHandle.Close(onHandleClose)
}

func onHandleClose(native *reactor.Handle) {
	owner, loaded := reactor.Lookup[handleOwner](native.Loop(), native.Data)
	if !loaded {
		return
	}
	h := owner.handle()
	h.publish(EvClose{})
	h.maybeDestroy()
}
