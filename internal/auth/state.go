// state.go -- CSRF state for the two authorization round-trips.
//
// One pending state per browser session, stored server-side with a TTL and
// consumed on the first callback whatever the outcome.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/MGallo-Code/hermes/internal/store"
)

// ErrStateMismatch covers every way a callback can fail the CSRF check:
// no browser session, nothing pending, wrong value, or wrong flow.
var ErrStateMismatch = errors.New("oauth state mismatch")

// PendingStore persists pending authorizations. Satisfied by *store.RedisStore.
type PendingStore interface {
	SetPendingAuthorization(ctx context.Context, key string, p store.PendingAuthorization, ttl time.Duration) error
	TakePendingAuthorization(ctx context.Context, key string) (*store.PendingAuthorization, error)
}

// StateGuard issues and checks state values.
type StateGuard struct {
	Store PendingStore
	TTL   time.Duration
}

// GenerateState returns 128 bits of randomness, base64url encoded.
func GenerateState() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating state with rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// Issue stores a fresh state for sessionKey, replacing any earlier one.
// The redirect URI is kept so the callback exchanges with the exact value sent.
func (g *StateGuard) Issue(ctx context.Context, sessionKey string, flow store.Flow, redirectURI string) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	err = g.Store.SetPendingAuthorization(ctx, sessionKey, store.PendingAuthorization{
		State:       state,
		Flow:        flow,
		RedirectURI: redirectURI,
		CreatedAt:   time.Now(),
	}, g.TTL)
	if err != nil {
		return "", err
	}
	return state, nil
}

// Validate consumes the pending state for sessionKey and compares it with returned.
// The pending value is gone after this call even when the check fails.
// Returns ErrStateMismatch for any CSRF failure; other errors are infrastructure.
func (g *StateGuard) Validate(ctx context.Context, sessionKey string, flow store.Flow, returned string) (*store.PendingAuthorization, error) {
	if sessionKey == "" {
		return nil, ErrStateMismatch
	}
	p, err := g.Store.TakePendingAuthorization(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, store.ErrNoPendingAuthorization) {
			return nil, ErrStateMismatch
		}
		return nil, err
	}
	// Constant-time comparison prevents timing oracle on state value.
	if returned == "" || subtle.ConstantTimeCompare([]byte(p.State), []byte(returned)) != 1 {
		return nil, ErrStateMismatch
	}
	if p.Flow != flow {
		return nil, ErrStateMismatch
	}
	return p, nil
}
