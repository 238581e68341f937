// linker.go -- maps a LINE identity onto exactly one local account.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MGallo-Code/hermes/internal/store"
)

// ErrProfileIncomplete is returned when the provider profile carries no user id.
var ErrProfileIncomplete = errors.New("provider profile has no user id")

// AccountUpserter creates-or-updates an account by provider subject in one atomic step.
// Satisfied by *store.PostgresStore.
type AccountUpserter interface {
	UpsertAccountBySubject(ctx context.Context, in store.AccountUpsert) (*store.Account, bool, error)
}

// LinkInput is everything a successful login knows about the user.
type LinkInput struct {
	SubjectID   string
	AccessToken string
	IDToken     string
	Name        string
	Email       string
	Picture     string
}

// AccountLinker finds-or-creates the account for a provider subject.
type AccountLinker struct {
	Store AccountUpserter
}

// Upsert persists in and returns the stored account. Profile fields and login
// tokens are overwritten on every login; id and subject never change.
// Returns ErrProfileIncomplete, without touching the store, when SubjectID is empty.
func (l *AccountLinker) Upsert(ctx context.Context, in LinkInput) (*store.Account, error) {
	if in.SubjectID == "" {
		return nil, ErrProfileIncomplete
	}
	a, created, err := l.Store.UpsertAccountBySubject(ctx, store.AccountUpsert{
		LineUserID:       in.SubjectID,
		DisplayName:      in.Name,
		Email:            in.Email,
		AvatarURL:        in.Picture,
		LoginAccessToken: in.AccessToken,
		LoginIDToken:     in.IDToken,
	})
	if err != nil {
		return nil, fmt.Errorf("linking account: %w", err)
	}
	if created {
		slog.InfoContext(ctx, "account created", "account_id", a.ID)
	}
	return a, nil
}
