// line.go
//
// FakeLine is an in-process stand-in for the LINE Login and LINE Notify APIs.
// Codes, tokens and profiles are registered up front; every call is recorded.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MGallo-Code/hermes/internal/notify"
	"github.com/MGallo-Code/hermes/internal/oauth"
)

// IDTokenSecret signs the ID tokens minted by IDToken.
const IDTokenSecret = "fake-line-channel-secret"

// Push is one recorded LINE Notify delivery.
type Push struct {
	Token   string
	Message string
}

// FakeLine serves /login/* and /notify/* on one httptest server.
type FakeLine struct {
	*httptest.Server

	mu            sync.Mutex
	loginCodes    map[string]oauth.TokenResult
	notifyCodes   map[string]string
	profiles      map[string]oauth.Profile
	pushFailures  map[string]notify.Result
	pushes        []Push
	revokedLogin  []string
	revokedNotify []string
	exchanges     int
}

// NewFakeLine starts a FakeLine; it is closed when the test ends.
func NewFakeLine(t interface{ Cleanup(func()) }) *FakeLine {
	f := &FakeLine{
		loginCodes:   make(map[string]oauth.TokenResult),
		notifyCodes:  make(map[string]string),
		profiles:     make(map[string]oauth.Profile),
		pushFailures: make(map[string]notify.Result),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/token", f.loginToken)
	mux.HandleFunc("GET /login/profile", f.profile)
	mux.HandleFunc("POST /login/revoke", f.loginRevoke)
	mux.HandleFunc("POST /notify/token", f.notifyToken)
	mux.HandleFunc("POST /notify/api", f.push)
	mux.HandleFunc("POST /notify/revoke", f.notifyRevoke)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// LoginProvider returns a LINE Login provider pointed at f.
func (f *FakeLine) LoginProvider() *oauth.Provider {
	return &oauth.Provider{
		Name:         "line-login",
		ClientID:     "login-client",
		ClientSecret: IDTokenSecret,
		Scope:        "openid profile email",
		AuthURL:      f.URL + "/login/authorize",
		TokenURL:     f.URL + "/login/token",
		RevokeURL:    f.URL + "/login/revoke",
		ProfileURL:   f.URL + "/login/profile",
		RedirectURI:  "/signin-callback",
		HTTPClient:   f.Client(),
	}
}

// NotifyProvider returns a LINE Notify authorization provider pointed at f.
func (f *FakeLine) NotifyProvider() *oauth.Provider {
	return &oauth.Provider{
		Name:         "line-notify",
		ClientID:     "notify-client",
		ClientSecret: "notify-secret",
		Scope:        "notify",
		AuthURL:      f.URL + "/notify/authorize",
		TokenURL:     f.URL + "/notify/token",
		RevokeURL:    f.URL + "/notify/revoke",
		RedirectURI:  "/subscribe-callback",
		HTTPClient:   f.Client(),
	}
}

// NotifyClient returns a push/revoke client pointed at f.
func (f *FakeLine) NotifyClient() *notify.Client {
	return notify.NewClient(f.URL+"/notify/api", f.URL+"/notify/revoke", f.Client())
}

// AddLogin registers a single-use login code that yields accessToken and idToken,
// plus the profile served for accessToken.
func (f *FakeLine) AddLogin(code, accessToken, idToken string, prof oauth.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCodes[code] = oauth.TokenResult{
		AccessToken: accessToken,
		IDToken:     idToken,
		ExpiresIn:   2592000,
		Scope:       "openid profile email",
		TokenType:   "Bearer",
	}
	f.profiles[accessToken] = prof
}

// AddNotifyCode registers a single-use notify code that yields accessToken.
func (f *FakeLine) AddNotifyCode(code, accessToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifyCodes[code] = accessToken
}

// FailPush makes every push to token answer with res.
func (f *FakeLine) FailPush(token string, res notify.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushFailures[token] = res
}

// Pushes returns the recorded notify deliveries.
func (f *FakeLine) Pushes() []Push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Push(nil), f.pushes...)
}

// RevokedLogin returns login access tokens revoked so far.
func (f *FakeLine) RevokedLogin() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revokedLogin...)
}

// RevokedNotify returns notify tokens revoked so far.
func (f *FakeLine) RevokedNotify() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revokedNotify...)
}

// Exchanges counts token endpoint calls across both flows.
func (f *FakeLine) Exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

// IDToken mints an HS256 ID token signed with IDTokenSecret.
func IDToken(subject, name, email, picture string) string {
	claims := jwt.MapClaims{
		"iss":     "https://access.line.me",
		"sub":     subject,
		"aud":     "login-client",
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
		"name":    name,
		"email":   email,
		"picture": picture,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(IDTokenSecret))
	if err != nil {
		panic(err)
	}
	return s
}

func (f *FakeLine) loginToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.exchanges++
	code := r.PostForm.Get("code")
	tok, ok := f.loginCodes[code]
	delete(f.loginCodes, code)
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "invalid authorization code",
		})
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (f *FakeLine) profile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	prof, ok := f.profiles[bearer(r)]
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (f *FakeLine) loginRevoke(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.revokedLogin = append(f.revokedLogin, r.PostForm.Get("access_token"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *FakeLine) notifyToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.exchanges++
	code := r.PostForm.Get("code")
	tok, ok := f.notifyCodes[code]
	delete(f.notifyCodes, code)
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "invalid authorization code",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       200,
		"message":      "access_token is issued",
		"access_token": tok,
	})
}

func (f *FakeLine) push(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	token := bearer(r)
	f.mu.Lock()
	f.pushes = append(f.pushes, Push{Token: token, Message: r.PostForm.Get("message")})
	fail, failed := f.pushFailures[token]
	f.mu.Unlock()

	if failed {
		writeJSON(w, fail.Status, fail)
		return
	}
	writeJSON(w, http.StatusOK, notify.Result{Status: 200, Message: "ok"})
}

func (f *FakeLine) notifyRevoke(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.revokedNotify = append(f.revokedNotify, bearer(r))
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, notify.Result{Status: 200, Message: "ok"})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
