package reactor

import (
	"golang.org/x/sys/unix"
)

// Pipe is a stream over a unix domain socket or an already open descriptor.
type Pipe struct {
	Stream
	path string
}

func InitPipe(loop *Loop, pipe *Pipe) error {
	if loop.closed {
		return StatusInvalid
	}
	*pipe = Pipe{}
	pipe.Stream.init(loop, HandlePipe)
	pipe.Handle.stop = pipe.closeIO
	return nil
}

// Open adopts fd, which must be a connected stream descriptor.
func (p *Pipe) Open(fd int) error {
	if p.IsClosing() {
		return StatusInvalid
	}
	return p.open(fd)
}

// Bind binds the pipe to a filesystem path. The socket file is removed on close.
func (p *Pipe) Bind(path string) error {
	if p.IsClosing() || path == "" {
		return StatusInvalid
	}
	if p.path != "" {
		return StatusInvalid
	}
	err := p.openSocket(unix.AF_UNIX)
	if err != nil {
		return err
	}
	err = unix.Bind(p.fd, &unix.SockaddrUnix{Name: path})
	if err != nil {
		return StatusOf(err)
	}
	p.path = path
	return nil
}

func (p *Pipe) Connect(req *ConnectReq, path string, callback ConnectCallback) error {
	if p.IsClosing() || path == "" {
		return StatusInvalid
	}
	err := p.openSocket(unix.AF_UNIX)
	if err != nil {
		return err
	}
	return p.connect(req, &unix.SockaddrUnix{Name: path}, callback)
}

// SockName returns the bound path, empty for unbound pipes.
func (p *Pipe) SockName() string {
	return p.path
}

func (p *Pipe) PeerName() (string, error) {
	if p.fd < 0 {
		return "", StatusBadFD
	}
	sockaddr, err := unix.Getpeername(p.fd)
	if err != nil {
		return "", StatusOf(err)
	}
	if unixAddr, isUnix := sockaddr.(*unix.SockaddrUnix); isUnix {
		return unixAddr.Name, nil
	}
	return "", nil
}

func (p *Pipe) closeIO() {
	p.Stream.closeIO()
	if p.path != "" {
		unix.Unlink(p.path)
		p.path = ""
	}
}
