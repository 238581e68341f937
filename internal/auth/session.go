// session.go

// Session token generation, cookie management, and session issuance.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/MGallo-Code/hermes/internal/store"
)

const sessionCookieName = "__Host-session"

// Role is the authorization level carried in a session.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// RoleFor grants admin to exactly the bootstrap account.
func RoleFor(accountID, bootstrapID int64) Role {
	if accountID == bootstrapID {
		return RoleAdmin
	}
	return RoleUser
}

// SessionWriter persists sessions. Satisfied by *store.RedisStore.
type SessionWriter interface {
	SetSession(ctx context.Context, key string, sess store.Session, ttl time.Duration) error
	DeleteSession(ctx context.Context, key string) error
}

// SessionIssuer creates, rotates, and ends browser sessions.
type SessionIssuer struct {
	Store       SessionWriter
	TTL         time.Duration
	BootstrapID int64
}

// GenerateToken returns 256-bit random session token and its SHA-256 hash.
// Token goes in the cookie; hash goes in storage.
func GenerateToken() (*[32]byte, *[32]byte, error) {
	var token [32]byte
	_, err := rand.Read(token[:])
	if err != nil {
		return nil, nil, fmt.Errorf("generating token with rand: %w", err)
	}
	hash := sha256.Sum256(token[:])
	return &token, &hash, nil
}

// sessionKeyFor maps a token hash to its Redis key.
func sessionKeyFor(hash *[32]byte) string {
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Begin starts an anonymous browser session, used to anchor pending state before login.
// Returns the new session key.
func (s *SessionIssuer) Begin(ctx context.Context, w http.ResponseWriter) (string, error) {
	return s.write(ctx, w, store.Session{})
}

// Issue rotates the caller's browser session into one bound to a.
// Any session already in ctx is deleted first, so a pre-login token never becomes authenticated.
func (s *SessionIssuer) Issue(ctx context.Context, w http.ResponseWriter, a *store.Account) (*store.Session, error) {
	if oldKey, ok := SessionKeyFromContext(ctx); ok {
		if err := s.Store.DeleteSession(ctx, oldKey); err != nil {
			slog.WarnContext(ctx, "failed to delete pre-login session", "error", err)
		}
	}

	sess := store.Session{
		AccountID:   a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        string(RoleFor(a.ID, s.BootstrapID)),
	}
	if _, err := s.write(ctx, w, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// End deletes the session behind key and clears the cookie.
func (s *SessionIssuer) End(ctx context.Context, w http.ResponseWriter, key string) error {
	ClearSessionCookie(w)
	if err := s.Store.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

// write fills ID and ExpiresAt on sess, stores it under a new token, and sets the cookie.
func (s *SessionIssuer) write(ctx context.Context, w http.ResponseWriter, sess store.Session) (string, error) {
	token, hash, err := GenerateToken()
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	sess.ID = id
	sess.ExpiresAt = time.Now().Add(s.TTL)

	key := sessionKeyFor(hash)
	if err := s.Store.SetSession(ctx, key, sess, s.TTL); err != nil {
		return "", err
	}
	SetSessionCookie(w, *token, sess.ExpiresAt)
	return key, nil
}

// SetSessionCookie writes __Host-session cookie with HttpOnly, Secure, SameSite=Lax.
// Lax keeps the cookie on the top-level redirect back from LINE.
func SetSessionCookie(w http.ResponseWriter, rawToken [32]byte, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(rawToken[:]),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
	})
}

// ClearSessionCookie overwrites __Host-session with MaxAge=-1 to trigger browser deletion.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
