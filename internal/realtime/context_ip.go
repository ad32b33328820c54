package realtime

import (
	"context"
	"net"
	"net/http"
)

// clientIPKey carries the client address resolved by the HTTP layer.
//
// The gin route in front of the SockJS handler resolves the real client IP
// (honouring the trusted proxy list) and attaches it with WithClientIP.
type clientIPKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	v := ctx.Value(clientIPKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// clientIP returns the address attached by the HTTP layer, else the peer
// address of the connection. Forwarding headers are never read here.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
