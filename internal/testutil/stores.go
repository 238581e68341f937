// stores.go
//
// Shared mock implementations of the account store and session cache.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MGallo-Code/hermes/internal/store"
)

// MockStore implements the Postgres account store for tests.

// Always stateful...Accounts is a map keyed by id, like a real table.
// Upserts take the mutex, so concurrent logins for one subject still yield one row.
// Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	HealthErr         error
	UpsertErr         error
	GetAccountErr     error
	ListAccountsErr   error
	SetNotifyErr      error
	ClearNotifyErr    error
	ClearLoginErr     error
	ListRecipientsErr error

	Accounts map[int64]*store.Account

	// UpsertCalls counts UpsertAccountBySubject invocations that reached the map.
	UpsertCalls int

	nextID int64
	mu     sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given accounts.
// Ids of seeded accounts are kept; new accounts get ids above the highest seed.
func NewMockStore(accounts ...*store.Account) *MockStore {
	ms := &MockStore{Accounts: make(map[int64]*store.Account)}
	for _, a := range accounts {
		ms.Accounts[a.ID] = a
		if a.ID > ms.nextID {
			ms.nextID = a.ID
		}
	}
	return ms
}

// Account returns a copy of the stored account, or nil.
func (m *MockStore) Account(id int64) *store.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Accounts[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (m *MockStore) CheckHealth(context.Context) error {
	return m.HealthErr
}

func (m *MockStore) UpsertAccountBySubject(_ context.Context, in store.AccountUpsert) (*store.Account, bool, error) {
	if m.UpsertErr != nil {
		return nil, false, m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Accounts == nil {
		m.Accounts = make(map[int64]*store.Account)
	}
	m.UpsertCalls++

	now := time.Now()
	for _, a := range m.Accounts {
		if a.LineUserID == in.LineUserID {
			a.DisplayName = in.DisplayName
			a.Email = in.Email
			a.AvatarURL = in.AvatarURL
			a.LoginAccessToken = in.LoginAccessToken
			a.LoginIDToken = in.LoginIDToken
			a.UpdatedAt = now
			cp := *a
			return &cp, false, nil
		}
	}

	m.nextID++
	a := &store.Account{
		ID:               m.nextID,
		LineUserID:       in.LineUserID,
		DisplayName:      in.DisplayName,
		Email:            in.Email,
		AvatarURL:        in.AvatarURL,
		LoginAccessToken: in.LoginAccessToken,
		LoginIDToken:     in.LoginIDToken,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.Accounts[a.ID] = a
	cp := *a
	return &cp, true, nil
}

func (m *MockStore) GetAccountByID(_ context.Context, id int64) (*store.Account, error) {
	if m.GetAccountErr != nil {
		return nil, m.GetAccountErr
	}
	if a := m.Account(id); a != nil {
		return a, nil
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) ListAccounts(context.Context) ([]store.Account, error) {
	if m.ListAccountsErr != nil {
		return nil, m.ListAccountsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Account, 0, len(m.Accounts))
	for _, a := range m.Accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) SetNotifyToken(_ context.Context, id int64, token string) error {
	if m.SetNotifyErr != nil {
		return m.SetNotifyErr
	}
	return m.update(id, func(a *store.Account) { a.NotifyAccessToken = token })
}

func (m *MockStore) ClearNotifyToken(_ context.Context, id int64) error {
	if m.ClearNotifyErr != nil {
		return m.ClearNotifyErr
	}
	return m.update(id, func(a *store.Account) { a.NotifyAccessToken = "" })
}

func (m *MockStore) ClearLoginTokens(_ context.Context, id int64) error {
	if m.ClearLoginErr != nil {
		return m.ClearLoginErr
	}
	return m.update(id, func(a *store.Account) {
		a.LoginAccessToken = ""
		a.LoginIDToken = ""
	})
}

func (m *MockStore) ListNotifyRecipients(context.Context) ([]store.Recipient, error) {
	if m.ListRecipientsErr != nil {
		return nil, m.ListRecipientsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Recipient
	for _, a := range m.Accounts {
		if a.HasNotifyGrant() {
			out = append(out, store.Recipient{AccountID: a.ID, DisplayName: a.DisplayName, NotifyToken: a.NotifyAccessToken})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *MockStore) update(id int64, fn func(*store.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now()
	return nil
}

// MockCache implements the Redis session and pending-state cache for tests.
// Always stateful...Sessions and Pending are maps, like a real cache. TTLs are recorded, not enforced.
// Use *Err fields to inject errors for specific operations.
type MockCache struct {
	// Error injection...zero value means no error
	HealthErr        error
	SetSessionErr    error
	GetSessionErr    error
	DeleteSessionErr error
	SetPendingErr    error
	TakePendingErr   error

	Sessions map[string]*store.Session              // keyed by base64 token hash
	Pending  map[string]*store.PendingAuthorization // keyed like Sessions
	TTLs     map[string]time.Duration

	mu sync.Mutex
}

// NewMockCache returns an empty MockCache ready for use.
func NewMockCache() *MockCache {
	return &MockCache{
		Sessions: make(map[string]*store.Session),
		Pending:  make(map[string]*store.PendingAuthorization),
		TTLs:     make(map[string]time.Duration),
	}
}

// Session returns the stored session for key, or nil.
func (m *MockCache) Session(key string) *store.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sessions[key]
}

func (m *MockCache) CheckHealth(context.Context) error {
	return m.HealthErr
}

func (m *MockCache) GetSession(_ context.Context, key string) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[key]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	cp := *s
	return &cp, nil
}

func (m *MockCache) SetSession(_ context.Context, key string, sess store.Session, ttl time.Duration) error {
	if m.SetSessionErr != nil {
		return m.SetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.Sessions[key] = &sess
	m.TTLs["session:"+key] = ttl
	return nil
}

func (m *MockCache) DeleteSession(_ context.Context, key string) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, key)
	delete(m.Pending, key)
	return nil
}

func (m *MockCache) SetPendingAuthorization(_ context.Context, key string, p store.PendingAuthorization, ttl time.Duration) error {
	if m.SetPendingErr != nil {
		return m.SetPendingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.Pending[key] = &p
	m.TTLs["oauth_state:"+key] = ttl
	return nil
}

func (m *MockCache) TakePendingAuthorization(_ context.Context, key string) (*store.PendingAuthorization, error) {
	if m.TakePendingErr != nil {
		return nil, m.TakePendingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Pending[key]
	if !ok {
		return nil, store.ErrNoPendingAuthorization
	}
	delete(m.Pending, key)
	return p, nil
}

func (m *MockCache) init() {
	if m.Sessions == nil {
		m.Sessions = make(map[string]*store.Session)
	}
	if m.Pending == nil {
		m.Pending = make(map[string]*store.PendingAuthorization)
	}
	if m.TTLs == nil {
		m.TTLs = make(map[string]time.Duration)
	}
}
