package httpx

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxyTrust lists the peers allowed to name the original client through
// X-Forwarded-For. With no entries the header is ignored.
type proxyTrust []netip.Prefix

func (p proxyTrust) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr attributes req to a single address. The connection peer wins
// unless it is a trusted proxy; then X-Forwarded-For is walked from the
// nearest hop outwards and the first untrusted hop is the client. A hop that
// does not parse ends the walk at the last address that could be vouched for.
func (p proxyTrust) clientAddr(req *http.Request) string {
	current := peerHost(req.RemoteAddr)
	addr, err := netip.ParseAddr(current)
	if err != nil || !p.contains(addr) {
		return current
	}
	hops := forwardedHops(req.Header)
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(hops[i])
		if err != nil {
			return current
		}
		hop = hop.Unmap()
		if !p.contains(hop) {
			return hop.String()
		}
		current = hop.String()
	}
	return current
}

// forwardedHops flattens every X-Forwarded-For line, oldest hop first.
func forwardedHops(h http.Header) []string {
	var hops []string
	for _, line := range h.Values("X-Forwarded-For") {
		for _, part := range strings.Split(line, ",") {
			if hop := strings.TrimSpace(part); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func peerHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
