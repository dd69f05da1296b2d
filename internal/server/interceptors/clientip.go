package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"tenant-identity/backend/internal/ratelimit"
)

// ProxyResolver resolves the client address behind trusted reverse proxies. x-forwarded-for and
// x-real-ip are honored only when the transport peer is itself a trusted proxy.
type ProxyResolver struct {
	trusted []netip.Prefix
}

// NewProxyResolver parses the trusted proxy IPs and CIDRs.
func NewProxyResolver(entries []string) (*ProxyResolver, error) {
	r := &ProxyResolver{}
	for _, e := range entries {
		p, err := ratelimit.ParsePrefix(strings.TrimSpace(e))
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		r.trusted = append(r.trusted, p)
	}
	return r, nil
}

func (r *ProxyResolver) isTrusted(a netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for ctx. With an untrusted peer it is the peer. With a trusted
// peer it is the right-most x-forwarded-for hop that is not a trusted proxy, then x-real-ip, then
// the peer. An unparsable hop stops the walk at the nearest trusted address.
func (r *ProxyResolver) Resolve(ctx context.Context) string {
	a, ok := peerAddr(ctx)
	if !ok {
		return "unknown"
	}
	if r == nil || !r.isTrusted(a) {
		return a.String()
	}
	md, _ := metadata.FromIncomingContext(ctx)
	var hops []string
	for _, v := range md.Get("x-forwarded-for") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return a.String()
		}
		hop = hop.Unmap()
		if !r.isTrusted(hop) {
			return hop.String()
		}
		a = hop
	}
	if len(hops) == 0 {
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if real, err := netip.ParseAddr(strings.TrimSpace(vals[0])); err == nil {
				return real.Unmap().String()
			}
		}
	}
	return a.String()
}

// ClientIPUnary stores the resolved client address for ClientIP. Install it first in the chain.
func ClientIPUnary(r *ProxyResolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(context.WithValue(ctx, clientIPKey, r.Resolve(ctx)), req)
	}
}

func peerAddr(ctx context.Context) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(p.Addr.String()); err == nil {
		return ap.Addr().Unmap(), true
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		host = p.Addr.String()
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
