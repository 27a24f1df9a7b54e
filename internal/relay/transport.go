package relay

import (
	"net"
	"net/http"
	"strings"
)

// isExtensionOrigin reports whether an Origin header looks like a Chrome
// extension's own origin (§4.1: extensions always present such an origin;
// arbitrary browser pages do not).
func isExtensionOrigin(origin string) bool {
	return strings.HasPrefix(origin, "chrome-extension://")
}

// remoteHost extracts the host portion of an HTTP request's remote address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopbackIP reports whether host is an IPv4 127/8 address, ::1, an
// IPv4-mapped-IPv6 ::ffff:127.* address, per §4.1, or the literal name
// "localhost".
func isLoopbackIP(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return host == "localhost"
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 127
	}
	return ip.IsLoopback()
}

// requireLoopback rejects non-loopback remotes with HTTP 403 before a
// WebSocket upgrade is attempted; the /extension and /cdp handlers call it.
// Returns true if the request may proceed.
func requireLoopback(w http.ResponseWriter, r *http.Request) bool {
	if !isLoopbackIP(remoteHost(r)) {
		http.Error(w, "forbidden: loopback only", http.StatusForbidden)
		return false
	}
	return true
}

// requireExtensionOrigin rejects a present-but-foreign Origin header with
// HTTP 403. A missing Origin header is allowed through (non-browser CDP
// clients typically omit it).
func requireExtensionOrigin(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if !isExtensionOrigin(origin) {
		http.Error(w, "forbidden: unexpected origin", http.StatusForbidden)
		return false
	}
	return true
}
