package middleware

import (
	"context"
	"net/http"
	"strings"

	"confirm-dialog/internal/session"
)

type contextKey string

const SessionContextKey contextKey = "session"

// Session loads (or starts) the caller's session and stores it in the request
// context. Static probes skip it so they never mint cookies.
func Session(m *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			s := m.Load(w, r)
			ctx := context.WithValue(r.Context(), SessionContextKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFrom(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*session.Session)
	return s, ok && s != nil
}

// WithSession is used by code that runs outside the middleware chain.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, s)
}

func shouldSkip(path string) bool {
	switch {
	case path == "/healthz":
		return true
	case path == "/metrics":
		return true
	case strings.HasPrefix(path, "/static/"):
		return true
	default:
		return false
	}
}
