// Package metadata derives client details from request headers.
package metadata

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"brightpath/pkg/requestcontext"
)

// ClientMetadata records the client IP, User-Agent and client kind on the
// context. Audit events read them from there.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		userAgent := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ip, userAgent)
		ctx = requestcontext.WithClientKind(ctx, ClientKind(userAgent))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientKind summarizes a User-Agent as "browser/os", "bot" or "unknown".
// Payment provider callbacks arrive as bots; payer redirects as browsers.
func ClientKind(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	if browser == "" {
		return "unknown"
	}
	os := ua.OS()
	if os == "" {
		return browser
	}
	return browser + "/" + os
}

// ClientIPFromRequest returns the first valid address from X-Forwarded-For,
// then X-Real-IP, then RemoteAddr. Malformed header values are skipped.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip, ok := parseIP(host); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.RemoteAddr); ok {
		return ip
	}
	return "unknown"
}

func parseIP(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
