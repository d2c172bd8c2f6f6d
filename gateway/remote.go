package gateway

import (
	"net"
	"net/http"
	"strings"

	"github.com/andrebq/portcullis/ledger"
)

// ClientAddress returns the best known address of the client: the first
// X-Forwarded-For entry, then X-Real-Ip, then the peer address. When none is
// usable ledger.Unavailable is returned.
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if r.RemoteAddr == "" {
		return ledger.Unavailable
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if host == "" {
		return ledger.Unavailable
	}
	return host
}
