// login_handler.go -- LINE Login sign-in, callback, and sign-out.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/hermes/internal/oauth"
	"github.com/MGallo-Code/hermes/internal/store"
)

// SignIn handles GET /signin -- anchors a pending state to the browser session
// (starting an anonymous one if needed) and redirects to the LINE Login consent page.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	key, err := h.browserSession(w, r)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	redirectURI := h.Login.ResolveRedirectURI(r)
	state, err := h.State.Issue(r.Context(), key, store.FlowLogin, redirectURI)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}
	http.Redirect(w, r, h.Login.AuthCodeURL(state, redirectURI), http.StatusFound)
}

// SigninCallback handles GET /signin-callback -- checks state, exchanges the code,
// reads identity from the ID token and profile API, links the account, and
// rotates the browser session into a signed-in one.
// Responds 200 with the provider's token reply.
func (h *AuthHandler) SigninCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, ok := h.validateCallback(w, r, store.FlowLogin)
	if !ok {
		return
	}

	tok, err := h.Login.Exchange(ctx, r.URL.Query().Get("code"), pending.RedirectURI)
	if err != nil {
		h.providerFailure(w, r, "login token exchange", err)
		return
	}

	// Display claims are optional; an empty ID token falls back to the profile.
	var claims oauth.IDClaims
	if tok.IDToken != "" {
		c, err := h.IDTokens.Decode(ctx, tok.IDToken)
		if err != nil {
			logWarn(r, "signin callback: id token rejected", "error", err)
			BadRequest(w, r, "invalid id token")
			return
		}
		claims = *c
	}

	prof, err := h.Login.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		h.providerFailure(w, r, "profile fetch", err)
		return
	}

	in := LinkInput{
		SubjectID:   prof.UserID,
		AccessToken: tok.AccessToken,
		IDToken:     tok.IDToken,
		Name:        claims.Name,
		Email:       claims.Email,
		Picture:     claims.Picture,
	}
	if in.Name == "" {
		in.Name = prof.DisplayName
	}
	if in.Picture == "" {
		in.Picture = prof.PictureURL
	}

	account, err := h.Linker.Upsert(ctx, in)
	if errors.Is(err, ErrProfileIncomplete) {
		logWarn(r, "signin callback: profile has no user id")
		writeJSON(w, http.StatusBadRequest, prof)
		return
	}
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	if _, err := h.Sessions.Issue(ctx, w, account); err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user signed in", "account_id", account.ID)
	writeJSON(w, http.StatusOK, tok)
}

// SignOut handles GET /signout. With a signed-in account it revokes the LINE Login
// token (best effort), clears stored login tokens, and ends the session.
// Without one it ends whatever session exists and redirects to /signin.
// The notify grant survives sign-out.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, hasSession := SessionKeyFromContext(ctx)
	sess, _ := SessionFromContext(ctx)

	if !hasSession || !sess.Authenticated() {
		h.endAndRedirect(w, r, key, hasSession)
		return
	}

	account, err := h.PS.GetAccountByID(ctx, sess.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		logWarn(r, "signout: session account no longer exists")
		h.endAndRedirect(w, r, key, true)
		return
	}
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	if account.LoginAccessToken != "" {
		if err := h.Login.RevokeToken(ctx, account.LoginAccessToken); err != nil {
			logWarn(r, "signout: login token revoke failed", "error", err)
		}
	}
	if err := h.PS.ClearLoginTokens(ctx, account.ID); err != nil {
		InternalServerError(w, r, err)
		return
	}
	if err := h.Sessions.End(ctx, w, key); err != nil {
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user signed out", "account_id", account.ID)
	OK(w, "signed out")
}

// endAndRedirect ends the session behind key when there is one, then sends the browser to /signin.
func (h *AuthHandler) endAndRedirect(w http.ResponseWriter, r *http.Request, key string, hasSession bool) {
	if hasSession {
		if err := h.Sessions.End(r.Context(), w, key); err != nil {
			logWarn(r, "failed to end session", "error", err)
		}
	}
	http.Redirect(w, r, "/signin", http.StatusFound)
}

// browserSession returns the current session key, starting an anonymous session if there is none.
func (h *AuthHandler) browserSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if key, ok := SessionKeyFromContext(r.Context()); ok {
		return key, nil
	}
	return h.Sessions.Begin(r.Context(), w)
}

// validateCallback consumes the pending state for flow and checks the callback query.
// Writes the error response and returns false on any failure.
func (h *AuthHandler) validateCallback(w http.ResponseWriter, r *http.Request, flow store.Flow) (*store.PendingAuthorization, bool) {
	key, _ := SessionKeyFromContext(r.Context())
	q := r.URL.Query()

	pending, err := h.State.Validate(r.Context(), key, flow, q.Get("state"))
	if err != nil {
		if errors.Is(err, ErrStateMismatch) {
			logWarn(r, "oauth callback: state mismatch", "flow", flow)
			BadRequest(w, r, "bad request")
			return nil, false
		}
		InternalServerError(w, r, err)
		return nil, false
	}

	// User declined consent; LINE sends error + error_description instead of a code.
	if code := q.Get("error"); code != "" {
		logInfo(r, "oauth callback: authorization denied", "flow", flow, "error", code)
		writeJSON(w, http.StatusBadRequest, &oauth.ProviderError{Code: code, Description: q.Get("error_description")})
		return nil, false
	}
	return pending, true
}

// providerFailure maps an outbound provider error to a response:
// provider-reported errors pass through as 400, unreachable providers are 502.
func (h *AuthHandler) providerFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if pe, ok := oauth.IsProviderError(err); ok {
		logWarn(r, op+" rejected by provider", "status", pe.Status, "error", pe.Code)
		writeJSON(w, http.StatusBadRequest, pe)
		return
	}
	if oauth.IsTransportError(err) {
		BadGateway(w, r, "provider unavailable", err)
		return
	}
	InternalServerError(w, r, err)
}
