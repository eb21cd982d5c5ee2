package uv

import (
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

// Prepare publishes EvPrepare once per loop iteration, right before polling.
type Prepare struct {
	Handle
	native reactor.Prepare
}

func NewPrepare(loop *reactor.Loop) (*Prepare, error) {
	prepare := new(Prepare)
	err := reactor.InitPrepare(loop, &prepare.native)
	if err != nil {
		return nil, E.Cause(err, "init prepare")
	}
	prepare.initHandle(loop, &prepare.native.Handle, prepare)
	return prepare, nil
}

func (p *Prepare) Start() error {
	return p.native.Start(onPrepare)
}

func (p *Prepare) Stop() error {
	return p.native.Stop()
}

func onPrepare(native *reactor.Prepare) {
	if prepare, loaded := reactor.Lookup[*Prepare](native.Loop(), native.Data); loaded {
		prepare.publish(EvPrepare{})
	}
}
