// models.go -- Shared domain types for the store package.
// Used by both Postgres (accounts) and Redis (sessions + pending authorizations).
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrNotFound is returned when an account or session lookup matches nothing.
// Callers use errors.Is to tell a missing row apart from an infrastructure failure.
var ErrNotFound = errors.New("not found")

// ErrCacheMiss is returned by GetSession when the key is not in Redis.
var ErrCacheMiss = errors.New("cache miss")

// ErrNoPendingAuthorization is returned by TakePendingAuthorization when the
// browser session holds no unconsumed state (never issued, expired, or already used).
var ErrNoPendingAuthorization = errors.New("no pending authorization")

// Account represents a row in the accounts table.
// LineUserID is the provider's immutable subject id; unique, set once at first login.
// Empty token fields mean "none held".
type Account struct {
	ID                int64
	DisplayName       string
	Email             string
	AvatarURL         string
	LineUserID        string
	LoginAccessToken  string
	LoginIDToken      string
	NotifyAccessToken string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasNotifyGrant reports whether the account holds a live notify token.
func (a *Account) HasNotifyGrant() bool {
	return a.NotifyAccessToken != ""
}

// AccountUpsert carries the provider values written on every successful login.
type AccountUpsert struct {
	LineUserID       string
	DisplayName      string
	Email            string
	AvatarURL        string
	LoginAccessToken string
	LoginIDToken     string
}

// Recipient is the projection of an account read by the notification dispatcher.
type Recipient struct {
	AccountID   int64
	DisplayName string
	NotifyToken string
}

// Flow names which authorization round-trip a pending state belongs to.
type Flow string

const (
	FlowLogin  Flow = "login"
	FlowNotify Flow = "notify"
)

// PendingAuthorization is the JSON shape stored in Redis between redirect and callback.
// One per browser session; issuing a new one overwrites the previous.
type PendingAuthorization struct {
	State       string    `json:"state"`
	Flow        Flow      `json:"flow"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the JSON shape stored in Redis for a browser session.
// AccountID 0 marks an anonymous session that has not completed login yet.
type Session struct {
	ID          uuid.UUID `json:"id"`
	AccountID   int64     `json:"account_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticated reports whether the session is bound to an account.
func (s *Session) Authenticated() bool {
	return s.AccountID != 0
}
