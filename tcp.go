package uv

import (
	"net"
	"net/netip"
	"strconv"
	"time"

	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/common/log"
	"github.com/sagernet/sing-uv/reactor"
)

var tcpLogger = log.NewLogger("tcp")

// TCP is a TCP stream handle. Accepted clients arrive as EvAccept[*TCP].
type TCP struct {
	Stream
	native reactor.TCP
}

func NewTCP(loop *reactor.Loop) (*TCP, error) {
	tcp := new(TCP)
	err := reactor.InitTCP(loop, &tcp.native)
	if err != nil {
		return nil, E.Cause(err, "init tcp")
	}
	tcp.initStream(loop, &tcp.native.Stream, tcp)
	tcp.acceptClient = tcp.accept
	return tcp, nil
}

// Bind binds to addr and publishes EvBind.
func (t *TCP) Bind(addr netip.AddrPort) error {
	err := t.native.Bind(addr)
	if err != nil {
		return E.Cause(err, "bind ", addr)
	}
	tcpLogger.Debug("tcp ", t.id, " bound to ", addr)
	t.publish(EvBind{})
	return nil
}

// ParseHostPort splits a host:port address. Address literals are parsed
// directly, anything else is split as a name and a port.
func ParseHostPort(address string) (string, uint16, error) {
	if addrPort, err := netip.ParseAddrPort(address); err == nil {
		return addrPort.Addr().String(), addrPort.Port(), nil
	}
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, E.Cause(err, "parse ", address)
	}
	port, err := strconv.ParseUint(portString, 10, 16)
	if err != nil {
		return "", 0, E.Cause(err, "parse port ", portString)
	}
	return host, uint16(port), nil
}

// BindHost binds to host, which is either an address literal or a name
// resolved first. The first resolved address that can be bound wins.
func (t *TCP) BindHost(host string, port uint16) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		return t.Bind(netip.AddrPortFrom(addr, port))
	}
	return resolve(t.loop, host, false, func(addrs []netip.Addr, err error) {
		if t.destroyed || t.IsClosing() {
			return
		}
		if err != nil {
			t.reportError("resolve "+host, reactor.StatusOf(err))
			return
		}
		for _, addr := range addrs {
			if t.Bind(netip.AddrPortFrom(addr, port)) == nil {
				return
			}
		}
		tcpLogger.Warn("tcp ", t.id, ": no bindable address for ", host)
	})
}

// Connect starts connecting to addr. EvConnect follows on success.
func (t *TCP) Connect(addr netip.AddrPort) error {
	if t.destroyed {
		return ErrDestroyed
	}
	req := newConnectRequest(t.loop)
	req.start()
	err := t.native.Connect(&req.native, addr, onStreamConnect)
	if err != nil {
		req.discard()
		return E.Cause(err, "connect ", addr)
	}
	return nil
}

// ConnectHost resolves host and connects to its first address.
func (t *TCP) ConnectHost(host string, port uint16) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		return t.Connect(netip.AddrPortFrom(addr, port))
	}
	return resolve(t.loop, host, false, func(addrs []netip.Addr, err error) {
		if t.destroyed || t.IsClosing() {
			return
		}
		if err == nil && len(addrs) == 0 {
			err = reactor.StatusNoName
		}
		if err == nil {
			err = t.Connect(netip.AddrPortFrom(addrs[0], port))
		}
		if err != nil {
			t.reportError("connect "+host, reactor.StatusOf(err))
		}
	})
}

func (t *TCP) SetNoDelay(enable bool) error {
	return t.native.SetNoDelay(enable)
}

func (t *TCP) SetKeepAlive(enable bool, delay time.Duration) error {
	return t.native.SetKeepAlive(enable, delay)
}

func (t *TCP) SetSockOpt(level, option, value int) error {
	return t.native.SetSockOpt(level, option, value)
}

func (t *TCP) LocalAddr() (netip.AddrPort, error) {
	return t.native.SockName()
}

func (t *TCP) RemoteAddr() (netip.AddrPort, error) {
	return t.native.PeerName()
}

// IP returns the peer address, or the zero Addr when not connected.
func (t *TCP) IP() netip.Addr {
	addr, _ := t.native.PeerName()
	return addr.Addr()
}

// Port returns the peer port, or zero when not connected.
func (t *TCP) Port() uint16 {
	addr, _ := t.native.PeerName()
	return addr.Port()
}

func (t *TCP) accept() error {
	client, err := NewTCP(t.loop)
	if err != nil {
		return err
	}
	err = t.native.Accept(&client.native.Stream)
	if err != nil {
		client.Close()
		client.Release()
		return err
	}
	if !t.publish(EvAccept[*TCP]{Client: client}) {
		tcpLogger.Debug("tcp ", t.id, " dropped unclaimed client ", client.id)
		client.Close()
		client.Release()
	}
	return nil
}
