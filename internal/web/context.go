package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/ThreatBoard/internal/core"
	"github.com/JonMunkholm/ThreatBoard/internal/logging"
	"github.com/JonMunkholm/ThreatBoard/internal/web/middleware"
)

// SessionHeader lets API clients that do not keep cookies carry their session.
const SessionHeader = "X-Session-ID"

type sessionKey struct{}

// WithRequestMetadata adds the client IP and User-Agent to ctx for analysis history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, middleware.ClientIP(r)) // RemoteAddr already rewritten by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// sessionID returns the session ID stored by withSession.
func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// withSession resolves the caller's analysis session from the cookie or the
// X-Session-ID header, creating one when missing or expired. The effective ID
// is echoed in both so the client can keep using it.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := r.Header.Get(SessionHeader)
		if c, err := r.Cookie(s.cfg.Session.CookieName); err == nil && c.Value != "" {
			requested = c.Value
		}

		// The cookie is refreshed on every request so it lives as long as the idle TTL.
		id := s.service.EnsureSession(requested)
		http.SetCookie(w, &http.Cookie{
			Name:     s.cfg.Session.CookieName,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cfg.Session.CookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.cfg.Session.TTL.Seconds()),
		})
		w.Header().Set(SessionHeader, id)

		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		ctx = logging.WithSessionID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
