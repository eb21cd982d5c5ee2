package reactor

import (
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

func toSockaddr(addr netip.AddrPort) (family int, sockaddr unix.Sockaddr) {
	ip := addr.Addr().Unmap()
	if ip.Is4() {
		return unix.AF_INET, &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	}
	sockaddr6 := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	if zone := ip.Zone(); zone != "" {
		if iface, err := net.InterfaceByName(zone); err == nil {
			sockaddr6.ZoneId = uint32(iface.Index)
		}
	}
	return unix.AF_INET6, sockaddr6
}

func fromSockaddr(sockaddr unix.Sockaddr) netip.AddrPort {
	switch addr := sockaddr.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(addr.Addr), uint16(addr.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(addr.Addr), uint16(addr.Port))
	default:
		return netip.AddrPort{}
	}
}
