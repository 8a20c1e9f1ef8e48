// Package admin guards operator-only routes with a shared token and records
// which operator made the call.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	dErrors "brightpath/pkg/domain-errors"
	"brightpath/pkg/platform/httputil"
	request "brightpath/pkg/platform/middleware/request"
	"brightpath/pkg/requestcontext"
)

const (
	HeaderAdminToken = "X-Admin-Token"
	HeaderAdminActor = "X-Admin-Actor"

	// DefaultActor is recorded when the operator does not identify themselves.
	DefaultActor = "admin"

	maxActorLen = 128
)

// RequireAdminToken rejects requests whose X-Admin-Token does not match. An
// empty expected token rejects everything. Accepted requests carry the
// X-Admin-Actor value (or DefaultActor) as requestcontext.AdminActor.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
					"client_ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			ctx = requestcontext.WithAdminActor(ctx, actorFrom(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(r *http.Request) string {
	actor := strings.TrimSpace(r.Header.Get(HeaderAdminActor))
	if actor == "" || len(actor) > maxActorLen {
		return DefaultActor
	}
	return actor
}
