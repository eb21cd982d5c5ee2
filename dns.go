package uv

import (
	"net/netip"

	E "github.com/sagernet/sing-uv/common/exceptions"
	"github.com/sagernet/sing-uv/reactor"
)

// DNSRequest resolves host names on the loop thread pool. A successful
// lookup publishes EvDNSResult; failures, including cancellation, publish
// EvError.
type DNSRequest struct {
	Req
	native reactor.AddrInfoReq
}

func NewDNSRequest(loop *reactor.Loop) *DNSRequest {
	request := new(DNSRequest)
	request.initReq(loop, &request.native.Req, request)
	return request
}

// Resolve starts a lookup of host. With ipv4Only set, only IPv4 addresses
// are returned.
func (r *DNSRequest) Resolve(host string, ipv4Only bool) error {
	err := r.begin()
	if err != nil {
		return err
	}
	err = reactor.GetAddrInfo(r.loop, &r.native, onAddrInfo, host, &reactor.AddrInfoHints{
		IPv4Only: ipv4Only,
	})
	if err != nil {
		r.end()
		return E.Cause(err, "resolve ", host)
	}
	return nil
}

// Host returns the name of the last lookup.
func (r *DNSRequest) Host() string {
	return r.native.Host()
}

func onAddrInfo(native *reactor.AddrInfoReq, status reactor.Status, addrs []netip.Addr) {
	request, loaded := reactor.Lookup[*DNSRequest](native.Loop(), native.Data)
	if !loaded {
		return
	}
	request.end()
	if status != reactor.StatusOK {
		reqLogger.Debug("resolve ", native.Host(), ": ", status)
		request.reportError("resolve "+native.Host(), status)
	} else {
		request.publish(EvDNSResult{Host: native.Host(), Addrs: addrs})
	}
	request.maybeDestroy()
}

// resolve runs a one-off lookup owned by the caller's callback.
func resolve(loop *reactor.Loop, host string, ipv4Only bool, callback func(addrs []netip.Addr, err error)) error {
	request := NewDNSRequest(loop)
	Once(request, func(event EvDNSResult, request *DNSRequest) {
		callback(event.Addrs, nil)
	})
	Once(request, func(event EvError, request *DNSRequest) {
		callback(nil, event)
	})
	err := request.Resolve(host, ipv4Only)
	request.Release()
	return err
}
