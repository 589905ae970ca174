package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceIDFromRequest returns the client-supplied device identifier, if any.
// Websocket connection metadata records it for per-device diagnostics.
func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// RequestIDFromRequest returns the inbound request id header, if any.
func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// IPFromRequest returns the client address, preferring proxy headers over
// the raw peer address.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
