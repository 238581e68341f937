// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and account queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// accountColumns is the column list shared by every query that returns a full Account.
const accountColumns = `id, display_name, email, avatar_url, line_user_id,
	login_access_token, login_id_token, notify_access_token, created_at, updated_at`

// PostgresStore is the durable account store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a store.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	// Ping db to make sure connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings the pool.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// scanAccount reads one accountColumns row into an Account.
// Maps pgx.ErrNoRows to ErrNotFound.
func scanAccount(row pgx.Row, extra ...any) (*Account, error) {
	var a Account
	dest := []any{
		&a.ID, &a.DisplayName, &a.Email, &a.AvatarURL, &a.LineUserID,
		&a.LoginAccessToken, &a.LoginIDToken, &a.NotifyAccessToken, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// UpsertAccountBySubject creates the account for in.LineUserID or, when one
// already exists, overwrites its profile and login token fields.
// A single INSERT ... ON CONFLICT statement, so concurrent callbacks for the
// same subject can never produce two rows. id and line_user_id are never rewritten.
// created is true when a new row was inserted (xmax = 0 on a fresh tuple).
func (s *PostgresStore) UpsertAccountBySubject(ctx context.Context, in AccountUpsert) (*Account, bool, error) {
	var created bool
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (line_user_id, display_name, email, avatar_url, login_access_token, login_id_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (line_user_id) DO UPDATE SET
			display_name       = EXCLUDED.display_name,
			email              = EXCLUDED.email,
			avatar_url         = EXCLUDED.avatar_url,
			login_access_token = EXCLUDED.login_access_token,
			login_id_token     = EXCLUDED.login_id_token,
			updated_at         = NOW()
		RETURNING `+accountColumns+`, (xmax = 0)`,
		in.LineUserID, in.DisplayName, in.Email, in.AvatarURL, in.LoginAccessToken, in.LoginIDToken,
	)
	a, err := scanAccount(row, &created)
	if err != nil {
		return nil, false, fmt.Errorf("upserting account: %w", err)
	}
	return a, created, nil
}

// GetAccountByID fetches one account. Returns ErrNotFound if the id is unknown.
func (s *PostgresStore) GetAccountByID(ctx context.Context, id int64) (*Account, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	return scanAccount(row)
}

// ListAccounts returns every account ordered by id.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetNotifyToken stores (overwrites) the notify grant for an account.
func (s *PostgresStore) SetNotifyToken(ctx context.Context, id int64, token string) error {
	return s.execOne(ctx,
		"UPDATE accounts SET notify_access_token = $2, updated_at = NOW() WHERE id = $1", id, token)
}

// ClearNotifyToken empties the notify grant for an account.
func (s *PostgresStore) ClearNotifyToken(ctx context.Context, id int64) error {
	return s.execOne(ctx,
		"UPDATE accounts SET notify_access_token = '', updated_at = NOW() WHERE id = $1", id)
}

// ClearLoginTokens empties the login access and id tokens. The notify grant is untouched.
func (s *PostgresStore) ClearLoginTokens(ctx context.Context, id int64) error {
	return s.execOne(ctx,
		"UPDATE accounts SET login_access_token = '', login_id_token = '', updated_at = NOW() WHERE id = $1", id)
}

// ListNotifyRecipients returns every account holding a live notify grant, ordered by id.
func (s *PostgresStore) ListNotifyRecipients(ctx context.Context) ([]Recipient, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, notify_access_token
		FROM accounts
		WHERE notify_access_token <> ''
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing notify recipients: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.AccountID, &r.DisplayName, &r.NotifyToken); err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// execOne runs an UPDATE expected to touch exactly one account row.
// Returns ErrNotFound when no row matched.
func (s *PostgresStore) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
