// grant.go -- per-account notify grant storage and revocation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MGallo-Code/hermes/internal/store"
)

// ErrNothingToRevoke is returned by Revoke when the account holds no grant.
// No outbound call is made in that case.
var ErrNothingToRevoke = errors.New("no notify grant to revoke")

// ErrEmptyGrant is returned by Grant for an empty token; empty means "no grant".
var ErrEmptyGrant = errors.New("empty notify token")

// GrantStore persists the notify token column.
// Satisfied by *store.PostgresStore.
type GrantStore interface {
	SetNotifyToken(ctx context.Context, accountID int64, token string) error
	ClearNotifyToken(ctx context.Context, accountID int64) error
}

// Revoker invalidates a notify token at the provider.
// Satisfied by *Client.
type Revoker interface {
	Revoke(ctx context.Context, token string) (*Result, error)
}

// GrantManager owns the notify grant lifecycle of an account.
type GrantManager struct {
	Store  GrantStore
	Remote Revoker
}

// RevokeResult reports the remote half of a revoke. The local grant is already
// cleared whenever a RevokeResult is returned.
type RevokeResult struct {
	Remote    *Result
	RemoteErr error
}

// Grant stores token as the account's notify grant, replacing any previous one.
func (m *GrantManager) Grant(ctx context.Context, accountID int64, token string) error {
	if token == "" {
		return ErrEmptyGrant
	}
	if err := m.Store.SetNotifyToken(ctx, accountID, token); err != nil {
		return fmt.Errorf("storing notify grant: %w", err)
	}
	return nil
}

// Revoke runs two ordered steps: attempt the remote revoke, then clear the local
// grant once that attempt has returned, whatever its outcome.
// Returns ErrNothingToRevoke (and calls nothing) when the account has no grant.
// The returned error is non-nil only if the local clear fails.
func (m *GrantManager) Revoke(ctx context.Context, a *store.Account) (*RevokeResult, error) {
	if !a.HasNotifyGrant() {
		return nil, ErrNothingToRevoke
	}

	res := &RevokeResult{}
	res.Remote, res.RemoteErr = m.Remote.Revoke(ctx, a.NotifyAccessToken)
	if res.RemoteErr != nil {
		slog.WarnContext(ctx, "notify revoke failed remotely, clearing local grant anyway",
			"account_id", a.ID, "error", res.RemoteErr)
	} else if !res.Remote.OK() {
		slog.WarnContext(ctx, "notify revoke rejected by provider, clearing local grant anyway",
			"account_id", a.ID, "status", res.Remote.Status, "message", res.Remote.Message)
	}

	if err := m.Store.ClearNotifyToken(ctx, a.ID); err != nil {
		return res, fmt.Errorf("clearing notify grant: %w", err)
	}
	return res, nil
}
