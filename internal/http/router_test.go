package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightpath/internal/platform/metrics"
	request "brightpath/pkg/platform/middleware/request"
	"brightpath/pkg/requestcontext"
	"brightpath/pkg/testutil"
)

type echoRoutes struct{}

func (echoRoutes) Register(r chi.Router) {
	r.Get("/v1/echo", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-Seen-Request-ID", requestcontext.RequestID(ctx))
		if requestcontext.Now(ctx).IsZero() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/v1/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func newTestRouter(checks map[string]HealthCheck) http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		HTTPMetrics:    metrics.NewHTTPWithRegistry(reg),
		AllowedOrigins: []string{"https://app.example"},
		Checks:         checks,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Routes:         []Registrar{echoRoutes{}},
	})
}

func TestRouter_Middleware(t *testing.T) {
	router := newTestRouter(nil)

	t.Run("propagates inbound request id", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/v1/echo")
		req.Header.Set(request.HeaderRequestID, "req-123")
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "req-123", rr.Header().Get(request.HeaderRequestID))
		assert.Equal(t, "req-123", rr.Header().Get("X-Seen-Request-ID"))
	})

	t.Run("recovers panics", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/panic"))
		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	})

	t.Run("answers CORS preflight for allowed origins", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodOptions, "/v1/echo")
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rr := testutil.DoRequest(router, req)
		assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("exposes metrics", func(t *testing.T) {
		testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/echo"))
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `brightpath_http_request_duration_seconds_count{method="GET",route="/v1/echo",status="204"}`)
	})
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("degraded dependency", func(t *testing.T) {
		router := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		body := testutil.UnmarshalResponse[healthResponse](t, rr)
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "unavailable", body.Checks["redis"])
		assert.Equal(t, "ok", body.Checks["postgres"])
	})
}
