// Package requesttime pins one "now" per request so validity windows, audit
// timestamps and state transitions written by the same request agree.
package requesttime

import (
	"net/http"
	"time"

	"brightpath/pkg/requestcontext"
)

// Middleware stamps requests with the wall clock.
var Middleware = New(time.Now)

// New stamps requests with now(), in UTC and truncated to the microsecond
// precision Postgres stores, so a value read back compares equal.
func New(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now().UTC().Truncate(time.Microsecond)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), t)))
		})
	}
}
