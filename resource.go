package uv

import (
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/common/log"
	"github.com/sagernet/sing-uv/reactor"
)

var (
	ErrDestroyed   = E.New("resource destroyed")
	ErrReqInFlight = E.New("request already in flight")
)

var resourceLogger = log.NewLogger("resource")

type listener func(event Event) bool

// Emitter is anything embedding a Resource.
type Emitter interface {
	resource() *Resource
}

// Resource owns one native record and dispatches its typed events.
//
// A resource starts with one caller reference. It is destroyed once every
// caller reference is released, every SelfRefUntil pin was released by its
// event, and the native record is detached from the loop. Destruction
// publishes EvDestroy and unregisters the back-pointer id.
//
// Resources must only be used from the goroutine running their loop.
type Resource struct {
	loop      *reactor.Loop
	id        uint64
	refs      int
	pins      [kindCount]int
	listeners [kindCount][]listener
	once      [kindCount][]listener
	before    [kindCount][]func()
	after     [kindCount][]func()
	detached  func() bool
	abandon   func()
	destroyed bool
}

func (r *Resource) init(loop *reactor.Loop, owner any) {
	r.loop = loop
	r.refs = 1
	r.id = loop.Registry().Register(owner)
}

func (r *Resource) resource() *Resource {
	return r
}

func (r *Resource) Loop() *reactor.Loop {
	return r.loop
}

// ID returns the registry id stored in the native record.
func (r *Resource) ID() uint64 {
	return r.id
}

func (r *Resource) IsDestroyed() bool {
	return r.destroyed
}

// Retain adds a caller reference.
func (r *Resource) Retain() {
	if r.destroyed {
		return
	}
	r.refs++
}

// Release drops a caller reference and publishes EvUnref.
func (r *Resource) Release() {
	if r.destroyed || r.refs == 0 {
		return
	}
	r.refs--
	r.publish(EvUnref{})
	r.maybeDestroy()
}

// publish reports whether any listener accepted the event's concrete type.
func (r *Resource) publish(event Event) (delivered bool) {
	kind := event.Kind()
	for _, hook := range r.before[kind] {
		hook()
	}
	if !kind.OneShot() {
		for _, listener := range r.listeners[kind] {
			if listener(event) {
				delivered = true
			}
		}
	}
	once := r.once[kind]
	r.once[kind] = nil
	for _, listener := range once {
		if listener(event) {
			delivered = true
		}
	}
	for _, hook := range r.after[kind] {
		hook()
	}
	r.releasePins(kind)
	return
}

func (r *Resource) reportError(operation string, status reactor.Status) {
	resourceLogger.Error("resource ", r.id, " ", operation, ": ", status)
	r.publish(EvError{Status: status, Message: operation + ": " + status.Error()})
}

func (r *Resource) pin(kind Kind) {
	if r.destroyed {
		return
	}
	r.pins[kind]++
	r.loop.Registry().Pin(r.id)
}

func (r *Resource) releasePins(kind Kind) {
	pins := r.pins[kind]
	if pins == 0 {
		return
	}
	r.pins[kind] = 0
	r.loop.Registry().Unpin(r.id, pins)
	r.maybeDestroy()
}

func (r *Resource) maybeDestroy() {
	if r.destroyed || r.refs > 0 || r.loop.Registry().Pins(r.id) > 0 {
		return
	}
	if r.detached != nil && !r.detached() {
		if r.abandon != nil {
			r.abandon()
		}
		return
	}
	r.destroyed = true
	resourceLogger.Trace("destroy resource ", r.id)
	r.publish(EvDestroy{})
	r.listeners = [kindCount][]listener{}
	r.once = [kindCount][]listener{}
	r.before = [kindCount][]func(){}
	r.after = [kindCount][]func(){}
	r.loop.Registry().Unregister(r.id)
}

// On registers a listener for every E published on emitter. Listeners of
// one-shot kinds are registered as Once.
func On[E Event, R Emitter](emitter R, callback func(event E, emitter R)) {
	kind := kindOf[E]()
	if kind.OneShot() {
		Once(emitter, callback)
		return
	}
	r := emitter.resource()
	if r.destroyed {
		return
	}
	r.listeners[kind] = append(r.listeners[kind], wrap(emitter, callback))
}

// Once registers a listener for the next E published on emitter.
func Once[E Event, R Emitter](emitter R, callback func(event E, emitter R)) {
	r := emitter.resource()
	if r.destroyed {
		return
	}
	kind := kindOf[E]()
	r.once[kind] = append(r.once[kind], wrap(emitter, callback))
}

func wrap[E Event, R Emitter](emitter R, callback func(event E, emitter R)) listener {
	return func(event Event) bool {
		typed, loaded := event.(E)
		if !loaded {
			return false
		}
		callback(typed, emitter)
		return true
	}
}

// Publish delivers event to the persistent listeners of its kind, then to
// and clears the one-shot listeners, then releases SelfRefUntil pins of
// that kind. Listeners may publish other events.
func Publish[E Event](emitter Emitter, event E) {
	emitter.resource().publish(event)
}

// SelfRefUntil keeps emitter alive without caller references until the next E is published.
func SelfRefUntil[E Event](emitter Emitter) {
	emitter.resource().pin(kindOf[E]())
}
