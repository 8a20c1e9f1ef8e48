// Package requestcontext carries request-scoped values without net/http.
//
// Middleware sets them; services, stores and workers read them:
//
//	payerID := requestcontext.PayerID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject them directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithPayer(ctx, payerID, "parent@example.com")
package requestcontext

import (
	"context"
	"time"

	id "brightpath/pkg/domain"
)

type (
	payerIDKey     struct{}
	payerEmailKey  struct{}
	adminActorKey  struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientKindKey  struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

func stringValue(ctx context.Context, key any) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// PayerID is the authenticated payer, or the nil ID when unauthenticated.
func PayerID(ctx context.Context) id.PayerID {
	v, _ := ctx.Value(payerIDKey{}).(id.PayerID)
	return v
}

// PayerEmail is the email claim of the payer's token. Receipts and
// checkout prefill use it.
func PayerEmail(ctx context.Context) string {
	return stringValue(ctx, payerEmailKey{})
}

func WithPayer(ctx context.Context, payerID id.PayerID, email string) context.Context {
	ctx = context.WithValue(ctx, payerIDKey{}, payerID)
	return context.WithValue(ctx, payerEmailKey{}, email)
}

// AdminActor names the operator behind an admin-token request.
func AdminActor(ctx context.Context) string {
	return stringValue(ctx, adminActorKey{})
}

func WithAdminActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, adminActorKey{}, actor)
}

func ClientIP(ctx context.Context) string {
	return stringValue(ctx, clientIPKey{})
}

func UserAgent(ctx context.Context) string {
	return stringValue(ctx, userAgentKey{})
}

// ClientKind is the parsed client summary ("Chrome/Android", "bot", ...).
func ClientKind(ctx context.Context) string {
	return stringValue(ctx, clientKindKey{})
}

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func WithClientKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, clientKindKey{}, kind)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now is the request-scoped clock. Outside a request (reaper sweeps, tests
// without WithTime) it falls back to time.Now.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins Now for everything downstream. Sweeps use it so one batch
// shares a single cutoff.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
