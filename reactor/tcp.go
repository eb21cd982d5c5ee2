package reactor

import (
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// TCP is a TCP stream. The socket is created lazily by Bind or Connect,
// or handed over by Accept.
type TCP struct {
	Stream
}

func InitTCP(loop *Loop, tcp *TCP) error {
	if loop.closed {
		return StatusInvalid
	}
	tcp.Stream.init(loop, HandleTCP)
	return nil
}

// Bind binds the socket to addr with SO_REUSEADDR set.
func (t *TCP) Bind(addr netip.AddrPort) error {
	if t.IsClosing() {
		return StatusInvalid
	}
	family, sockaddr := toSockaddr(addr)
	err := t.openSocket(family)
	if err != nil {
		return err
	}
	err = unix.SetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err != nil {
		return StatusOf(err)
	}
	if family == unix.AF_INET6 {
		unix.SetsockoptInt(t.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	}
	return statusError(unix.Bind(t.fd, sockaddr))
}

func (t *TCP) Connect(req *ConnectReq, addr netip.AddrPort, callback ConnectCallback) error {
	if t.IsClosing() {
		return StatusInvalid
	}
	family, sockaddr := toSockaddr(addr)
	err := t.openSocket(family)
	if err != nil {
		return err
	}
	return t.connect(req, sockaddr, callback)
}

func (t *TCP) SockName() (netip.AddrPort, error) {
	if t.fd < 0 {
		return netip.AddrPort{}, StatusBadFD
	}
	sockaddr, err := unix.Getsockname(t.fd)
	if err != nil {
		return netip.AddrPort{}, StatusOf(err)
	}
	return fromSockaddr(sockaddr), nil
}

func (t *TCP) PeerName() (netip.AddrPort, error) {
	if t.fd < 0 {
		return netip.AddrPort{}, StatusBadFD
	}
	sockaddr, err := unix.Getpeername(t.fd)
	if err != nil {
		return netip.AddrPort{}, StatusOf(err)
	}
	return fromSockaddr(sockaddr), nil
}

func (t *TCP) SetNoDelay(enable bool) error {
	return t.SetSockOpt(unix.IPPROTO_TCP, unix.TCP_NODELAY, boolValue(enable))
}

// SetKeepAlive toggles keep-alive probes. delay is the idle time before the
// first probe and is rounded down to whole seconds, at least one.
func (t *TCP) SetKeepAlive(enable bool, delay time.Duration) error {
	err := t.SetSockOpt(unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolValue(enable))
	if err != nil || !enable {
		return err
	}
	seconds := int(delay / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	err = t.SetSockOpt(unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, seconds)
	if err != nil {
		return err
	}
	return t.SetSockOpt(unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds)
}

func (t *TCP) SetSockOpt(level, option, value int) error {
	if t.fd < 0 {
		return StatusBadFD
	}
	return statusError(unix.SetsockoptInt(t.fd, level, option, value))
}

func (t *TCP) SockOpt(level, option int) (int, error) {
	if t.fd < 0 {
		return 0, StatusBadFD
	}
	value, err := unix.GetsockoptInt(t.fd, level, option)
	return value, statusError(err)
}

func boolValue(value bool) int {
	if value {
		return 1
	}
	return 0
}
