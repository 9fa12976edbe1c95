package rate

import (
	"net"
	"net/http"
	"strings"
)

// IdentifierFor picks the key a request is limited under: the account
// identity from the body when present, else the first X-Forwarded-For hop,
// else X-Real-IP, else the remote address.
func IdentifierFor(r *http.Request, bodyIdentity string) string {
	if id := strings.ToLower(strings.TrimSpace(bodyIdentity)); id != "" {
		return "id:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the best-effort client address of r.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
