// handler.go -- AuthHandler dependencies shared by every HTTP handler and middleware.
package auth

import (
	"context"
	"net/http"

	"github.com/MGallo-Code/hermes/internal/notify"
	"github.com/MGallo-Code/hermes/internal/oauth"
	"github.com/MGallo-Code/hermes/internal/store"
)

// AccountStore defines account operations needed by handlers.
// Satisfied by *store.PostgresStore -- defined here (at consumer) per Go convention.
type AccountStore interface {
	CheckHealth(ctx context.Context) error

	// GetAccountByID returns store.ErrNotFound for an unknown id.
	GetAccountByID(ctx context.Context, id int64) (*store.Account, error)

	ListAccounts(ctx context.Context) ([]store.Account, error)

	// ClearLoginTokens empties login access + id tokens; the notify grant is untouched.
	ClearLoginTokens(ctx context.Context, id int64) error
}

// SessionCache defines session and pending-state operations needed by handlers.
// Satisfied by *store.RedisStore.
type SessionCache interface {
	CheckHealth(ctx context.Context) error
	GetSession(ctx context.Context, key string) (*store.Session, error)
	PendingStore
	SessionWriter
}

// Authorizer is the redirect + exchange half of an OAuth2 provider.
// Satisfied by *oauth.Provider.
type Authorizer interface {
	ResolveRedirectURI(r *http.Request) string
	AuthCodeURL(state, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth.TokenResult, error)
}

// LoginProvider adds the LINE Login profile and revoke APIs to Authorizer.
// Satisfied by *oauth.Provider.
type LoginProvider interface {
	Authorizer
	FetchProfile(ctx context.Context, accessToken string) (*oauth.Profile, error)
	RevokeToken(ctx context.Context, accessToken string) error
}

// ClaimsDecoder extracts display claims from an ID token.
// Satisfied by *oauth.IDTokenDecoder.
type ClaimsDecoder interface {
	Decode(ctx context.Context, rawIDToken string) (*oauth.IDClaims, error)
}

// Granter stores and revokes notify grants. Satisfied by *notify.GrantManager.
type Granter interface {
	Grant(ctx context.Context, accountID int64, token string) error
	Revoke(ctx context.Context, a *store.Account) (*notify.RevokeResult, error)
}

// Broadcaster fans a message out to every subscriber. Satisfied by *notify.Dispatcher.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) (*notify.BroadcastResult, error)
}

// AuthHandler holds dependencies for all HTTP handlers and middleware.
type AuthHandler struct {
	PS AccountStore
	RS SessionCache

	Login    LoginProvider
	Notify   Authorizer
	IDTokens ClaimsDecoder

	State    *StateGuard
	Sessions *SessionIssuer
	Linker   *AccountLinker

	Grants     Granter
	Dispatcher Broadcaster

	// BroadcastMessage is the fixed text sent by NotifyAll.
	BroadcastMessage string
}
