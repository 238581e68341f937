// middleware.go

// Session loading and access-control middleware.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/MGallo-Code/hermes/internal/store"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const sessionKeyCtxKey contextKey = "session_key"
const sessionCtxKey contextKey = "session"

// SessionKeyFromContext retrieves the browser session's storage key.
// Returns "" and false if LoadSession found no live session.
func SessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyCtxKey).(string)
	return key, ok
}

// SessionFromContext retrieves the browser session.
// Returns nil and false if LoadSession found no live session.
func SessionFromContext(ctx context.Context) (*store.Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey).(*store.Session)
	return sess, ok
}

// withSession returns ctx carrying key and sess.
func withSession(ctx context.Context, key string, sess *store.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKeyCtxKey, key)
	return context.WithValue(ctx, sessionCtxKey, sess)
}

// LoadSession resolves the __Host-session cookie into a session and injects it
// into context. Never rejects: a missing, malformed, or expired cookie just
// leaves the context empty for RequireAuth or the handler to act on.
func (h *AuthHandler) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessCookie, err := r.Cookie(sessionCookieName)
		if err != nil || sessCookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		// Decode the base64 cookie value back to raw bytes.
		decoded, err := base64.RawURLEncoding.DecodeString(sessCookie.Value)
		if err != nil {
			logDebug(r, "ignoring session cookie", "reason", "invalid_cookie_encoding")
			next.ServeHTTP(w, r)
			return
		}
		// SHA-256 hash the raw token to produce the Redis lookup key.
		hash := sha256.Sum256(decoded)
		key := sessionKeyFor(&hash)

		// TTL expiry already handles stale keys.
		sess, err := h.RS.GetSession(r.Context(), key)
		if err != nil {
			if !errors.Is(err, store.ErrCacheMiss) {
				logError(r, "session lookup failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), key, sess)))
	})
}

// RequireAuth redirects to /signin unless LoadSession found an account-bound session.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok || !sess.Authenticated() {
			logInfo(r, "require auth failed", "reason", "no_signed_in_session")
			http.Redirect(w, r, "/signin", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin returns 403 unless the session carries the admin role.
// Must run after RequireAuth.
func (h *AuthHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok || Role(sess.Role) != RoleAdmin {
			logWarn(r, "require admin failed", "reason", "not_admin")
			Forbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
