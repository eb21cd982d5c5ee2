package reactor

import "sync/atomic"

// Registry maps the integer stored in a native record's Data field back to
// the object owning that record. It also counts detached ownership pins:
// a pinned id stays registered until every pin is removed.
//
// Registry is only touched from the loop goroutine, except for the counters.
type Registry struct {
	nextID     uint64
	owners     map[uint64]any
	pins       map[uint64]int
	registered atomic.Int64
	pinned     atomic.Int64
}

func newRegistry() *Registry {
	return &Registry{
		owners: make(map[uint64]any),
		pins:   make(map[uint64]int),
	}
}

// Register stores owner and returns its id. Ids are never reused.
func (r *Registry) Register(owner any) uint64 {
	r.nextID++
	r.owners[r.nextID] = owner
	r.registered.Add(1)
	return r.nextID
}

// Lookup returns the owner of id, or nil if id is not registered.
func (r *Registry) Lookup(id uint64) any {
	return r.owners[id]
}

func (r *Registry) Unregister(id uint64) {
	if _, loaded := r.owners[id]; !loaded {
		return
	}
	delete(r.owners, id)
	r.registered.Add(-1)
	if pins := r.pins[id]; pins > 0 {
		delete(r.pins, id)
		r.pinned.Add(-1)
	}
}

// Pin adds one detached ownership reference to id.
func (r *Registry) Pin(id uint64) {
	if _, loaded := r.owners[id]; !loaded {
		return
	}
	r.pins[id]++
	if r.pins[id] == 1 {
		r.pinned.Add(1)
	}
}

// Unpin removes n pins from id and reports whether any remain.
func (r *Registry) Unpin(id uint64, n int) bool {
	pins, loaded := r.pins[id]
	if !loaded {
		return false
	}
	pins -= n
	if pins > 0 {
		r.pins[id] = pins
		return true
	}
	delete(r.pins, id)
	r.pinned.Add(-1)
	return false
}

func (r *Registry) Pins(id uint64) int {
	return r.pins[id]
}

func (r *Registry) Len() int {
	return int(r.registered.Load())
}

func (r *Registry) Pinned() int {
	return int(r.pinned.Load())
}

// Lookup resolves id through the registry of loop and asserts the owner type.
func Lookup[T any](loop *Loop, id uint64) (T, bool) {
	owner, loaded := loop.registry.Lookup(id).(T)
	return owner, loaded
}
