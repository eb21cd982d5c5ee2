package reactor

import "github.com/sagernet/sing-uv/common/x/list"

type PrepareCallback func(prepare *Prepare)

// Prepare runs its callback once per loop iteration, right before polling for I/O.
type Prepare struct {
	Handle
	callback PrepareCallback
	element  *list.Element[*Prepare]
}

func InitPrepare(loop *Loop, prepare *Prepare) error {
	if loop.closed {
		return StatusInvalid
	}
	*prepare = Prepare{}
	prepare.Handle.init(loop, HandlePrepare)
	prepare.Handle.stop = func() {
		prepare.Stop()
	}
	return nil
}

func (p *Prepare) Start(callback PrepareCallback) error {
	if callback == nil || p.IsClosing() {
		return StatusInvalid
	}
	p.callback = callback
	if p.IsActive() {
		return nil
	}
	p.element = p.loop.prepares.PushBack(p)
	p.activate()
	return nil
}

func (p *Prepare) Stop() error {
	if !p.IsActive() {
		return nil
	}
	p.loop.prepares.Remove(p.element)
	p.element = nil
	p.deactivate()
	return nil
}
