package uv

import (
	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

// Pipe is a stream over a unix domain socket or an adopted descriptor.
type Pipe struct {
	Stream
	native reactor.Pipe
}

func NewPipe(loop *reactor.Loop) (*Pipe, error) {
	pipe := new(Pipe)
	err := reactor.InitPipe(loop, &pipe.native)
	if err != nil {
		return nil, E.Cause(err, "init pipe")
	}
	pipe.initStream(loop, &pipe.native.Stream, pipe)
	pipe.acceptClient = pipe.accept
	return pipe, nil
}

// Open adopts a connected stream descriptor. The pipe closes it.
func (p *Pipe) Open(fd int) error {
	return p.native.Open(fd)
}

// Bind binds to path and publishes EvBind. The socket file is removed on close.
func (p *Pipe) Bind(path string) error {
	err := p.native.Bind(path)
	if err != nil {
		return E.Cause(err, "bind ", path)
	}
	p.publish(EvBind{})
	return nil
}

func (p *Pipe) Connect(path string) error {
	if p.destroyed {
		return ErrDestroyed
	}
	req := newConnectRequest(p.loop)
	req.start()
	err := p.native.Connect(&req.native, path, onStreamConnect)
	if err != nil {
		req.discard()
		return E.Cause(err, "connect ", path)
	}
	return nil
}

func (p *Pipe) LocalAddr() string {
	return p.native.SockName()
}

func (p *Pipe) RemoteAddr() (string, error) {
	return p.native.PeerName()
}

func (p *Pipe) accept() error {
	client, err := NewPipe(p.loop)
	if err != nil {
		return err
	}
	err = p.native.Accept(&client.native.Stream)
	if err != nil {
		client.Close()
		client.Release()
		return err
	}
	if !p.publish(EvAccept[*Pipe]{Client: client}) {
		streamLogger.Debug("pipe ", p.id, " dropped unclaimed client ", client.id)
		client.Close()
		client.Release()
	}
	return nil
}
