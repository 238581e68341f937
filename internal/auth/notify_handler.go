// notify_handler.go -- LINE Notify subscription and broadcast handlers.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/MGallo-Code/hermes/internal/notify"
	"github.com/MGallo-Code/hermes/internal/store"
)

// Subscribe handles GET /subscribe -- issues a notify-flow state and redirects
// to the LINE Notify consent page.
func (h *AuthHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	key, _ := SessionKeyFromContext(r.Context())

	redirectURI := h.Notify.ResolveRedirectURI(r)
	state, err := h.State.Issue(r.Context(), key, store.FlowNotify, redirectURI)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	http.Redirect(w, r, h.Notify.AuthCodeURL(state, redirectURI), http.StatusFound)
}

// SubscribeCallback handles GET /subscribe-callback -- checks state, exchanges the
// code, and stores the notify token on the signed-in account.
// Responds 200 with the provider's token reply.
func (h *AuthHandler) SubscribeCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, ok := h.validateCallback(w, r, store.FlowNotify)
	if !ok {
		return
	}

	tok, err := h.Notify.Exchange(ctx, r.URL.Query().Get("code"), pending.RedirectURI)
	if err != nil {
		h.providerFailure(w, r, "notify token exchange", err)
		return
	}

	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	if err := h.Grants.Grant(ctx, account.ID, tok.AccessToken); err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "notify subscription granted", "account_id", account.ID)
	writeJSON(w, http.StatusOK, tok)
}

// Unsubscribe handles GET /unsubscribe -- revokes the notify token at LINE and
// clears it locally. Redirects to /my when there is nothing to revoke.
// Responds 200 with LINE's revoke reply, or 502 if LINE was unreachable
// (the local grant is cleared either way).
func (h *AuthHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	if !account.HasNotifyGrant() {
		http.Redirect(w, r, "/my", http.StatusFound)
		return
	}

	res, err := h.Grants.Revoke(r.Context(), account)
	if errors.Is(err, notify.ErrNothingToRevoke) {
		http.Redirect(w, r, "/my", http.StatusFound)
		return
	}
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "notify subscription revoked", "account_id", account.ID)
	if res.RemoteErr != nil {
		BadGateway(w, r, "notify revoke failed upstream; subscription removed locally", res.RemoteErr)
		return
	}
	writeJSON(w, http.StatusOK, res.Remote)
}

// NotifyAll handles GET /notifyall (admin) -- sends the broadcast message to every
// subscriber. Responds with one line per recipient plus a summary line.
// A client disconnect does not stop the broadcast.
func (h *AuthHandler) NotifyAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.Dispatcher.Broadcast(context.WithoutCancel(r.Context()), h.BroadcastMessage)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	if res.NoRecipients {
		OK(w, "no subscribers")
		return
	}

	logInfo(r, "broadcast sent", "attempted", res.Attempted, "delivered", res.Delivered())
	writeJSON(w, http.StatusOK, res.Lines())
}
