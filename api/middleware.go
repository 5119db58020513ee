package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ecoback/reward-engine/core"
)

// =============================================================================
// ACCESS LOG
// =============================================================================

// accessLog writes one zap line per request.
func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("request_id", requestID(r)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)))
		})
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Verifier turns a bearer token into a principal. *auth.TokenIssuer is the
// production implementation.
type Verifier interface {
	Verify(raw string) (core.Principal, error)
}

type ctxKey struct{}

func withPrincipal(ctx context.Context, p core.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the caller injected by Authenticate.
func PrincipalFrom(ctx context.Context) (core.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(core.Principal)
	return p, ok
}

func principal(r *http.Request) core.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

// Authenticate rejects requests without a valid "Authorization: Bearer" token.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			fail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := h.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			fail(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// RequireRoles lets through callers holding any of roles.
func RequireRoles(roles ...core.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok || !p.HasRole(roles...) {
				fail(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
