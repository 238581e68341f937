package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MGallo-Code/hermes/internal/store"
	"github.com/MGallo-Code/hermes/internal/testutil"
)

// --- AccountLinker ---

func TestAccountLinker_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then updates by subject", func(t *testing.T) {
		ms := testutil.NewMockStore()
		l := &AccountLinker{Store: ms}

		first, err := l.Upsert(ctx, LinkInput{SubjectID: "U1", AccessToken: "at-1", IDToken: "id-1", Name: "Alice", Email: "a@example.com", Picture: "p1"})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		second, err := l.Upsert(ctx, LinkInput{SubjectID: "U1", AccessToken: "at-2", IDToken: "id-2", Name: "Alice B", Email: "b@example.com", Picture: "p2"})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		if first.ID != second.ID {
			t.Errorf("same subject produced ids %d and %d", first.ID, second.ID)
		}
		if second.LineUserID != "U1" {
			t.Errorf("LineUserID: got %q", second.LineUserID)
		}
		if second.DisplayName != "Alice B" || second.Email != "b@example.com" || second.AvatarURL != "p2" {
			t.Errorf("profile not overwritten: %+v", second)
		}
		if second.LoginAccessToken != "at-2" || second.LoginIDToken != "id-2" {
			t.Errorf("login tokens not overwritten: %+v", second)
		}
		if len(ms.Accounts) != 1 {
			t.Errorf("accounts: got %d, want 1", len(ms.Accounts))
		}
	})

	t.Run("update keeps the notify grant", func(t *testing.T) {
		ms := testutil.NewMockStore(&store.Account{ID: 4, LineUserID: "U4", NotifyAccessToken: "nt"})
		l := &AccountLinker{Store: ms}

		a, err := l.Upsert(ctx, LinkInput{SubjectID: "U4", AccessToken: "at"})
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if a.ID != 4 || a.NotifyAccessToken != "nt" {
			t.Errorf("got %+v", a)
		}
	})

	t.Run("distinct subjects get distinct accounts", func(t *testing.T) {
		ms := testutil.NewMockStore()
		l := &AccountLinker{Store: ms}

		a, _ := l.Upsert(ctx, LinkInput{SubjectID: "U1"})
		b, _ := l.Upsert(ctx, LinkInput{SubjectID: "U2"})
		if a.ID == b.ID {
			t.Error("different subjects share an account id")
		}
	})

	t.Run("empty subject is rejected without a store call", func(t *testing.T) {
		ms := testutil.NewMockStore()
		l := &AccountLinker{Store: ms}

		_, err := l.Upsert(ctx, LinkInput{Name: "Nobody"})
		if !errors.Is(err, ErrProfileIncomplete) {
			t.Fatalf("got %v, want ErrProfileIncomplete", err)
		}
		if ms.UpsertCalls != 0 {
			t.Errorf("store called %d times, want 0", ms.UpsertCalls)
		}
	})

	t.Run("store error is wrapped", func(t *testing.T) {
		ms := testutil.NewMockStore()
		ms.UpsertErr = errors.New("db down")
		l := &AccountLinker{Store: ms}

		if _, err := l.Upsert(ctx, LinkInput{SubjectID: "U1"}); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("concurrent logins for one subject produce one account", func(t *testing.T) {
		ms := testutil.NewMockStore()
		l := &AccountLinker{Store: ms}

		var wg sync.WaitGroup
		ids := make([]int64, 20)
		for i := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, err := l.Upsert(ctx, LinkInput{SubjectID: "U-same"})
				if err != nil {
					t.Errorf("Upsert: %v", err)
					return
				}
				ids[i] = a.ID
			}()
		}
		wg.Wait()

		for _, id := range ids {
			if id != ids[0] {
				t.Fatalf("concurrent upserts returned different ids: %v", ids)
			}
		}
		if len(ms.Accounts) != 1 {
			t.Errorf("accounts: got %d, want 1", len(ms.Accounts))
		}
	})
}
