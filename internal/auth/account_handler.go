// account_handler.go -- read-only account views.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/MGallo-Code/hermes/internal/oauth"
	"github.com/MGallo-Code/hermes/internal/store"
)

// accountView is the public shape of an account. Tokens never leave the server.
type accountView struct {
	ID               int64     `json:"id"`
	DisplayName      string    `json:"display_name"`
	Email            string    `json:"email"`
	AvatarURL        string    `json:"avatar_url"`
	LineUserID       string    `json:"line_user_id"`
	NotifySubscribed bool      `json:"notify_subscribed"`
	CreatedAt        time.Time `json:"created_at"`
}

func viewOf(a *store.Account) accountView {
	return accountView{
		ID:               a.ID,
		DisplayName:      a.DisplayName,
		Email:            a.Email,
		AvatarURL:        a.AvatarURL,
		LineUserID:       a.LineUserID,
		NotifySubscribed: a.HasNotifyGrant(),
		CreatedAt:        a.CreatedAt,
	}
}

// My handles GET /my -- the signed-in account.
func (h *AuthHandler) My(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(account))
}

// Profile handles GET /profile -- the signed-in account plus its live LINE profile.
// A failed profile fetch is logged and the live part omitted.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	resp := struct {
		accountView
		LineProfile *oauth.Profile `json:"line_profile,omitempty"`
	}{accountView: viewOf(account)}

	if account.LoginAccessToken != "" {
		prof, err := h.Login.FetchProfile(r.Context(), account.LoginAccessToken)
		if err != nil {
			logWarn(r, "profile: live profile fetch failed", "error", err)
		} else {
			resp.LineProfile = prof
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Subscribers handles GET /subscribers (admin) -- every account, ordered by id.
func (h *AuthHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.PS.ListAccounts(r.Context())
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, viewOf(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// currentAccount loads the account behind the signed-in session.
// A session whose account has vanished is sent to /signout.
func (h *AuthHandler) currentAccount(w http.ResponseWriter, r *http.Request) (*store.Account, bool) {
	sess, ok := SessionFromContext(r.Context())
	if !ok || !sess.Authenticated() {
		http.Redirect(w, r, "/signin", http.StatusFound)
		return nil, false
	}
	account, err := h.PS.GetAccountByID(r.Context(), sess.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		logWarn(r, "session account no longer exists")
		http.Redirect(w, r, "/signout", http.StatusFound)
		return nil, false
	}
	if err != nil {
		InternalServerError(w, r, err)
		return nil, false
	}
	return account, true
}
