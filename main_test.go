// main_test.go
//
// Level 3 smoke tests
// chi wiring via httptest.NewServer with in-memory mock stores and a fake LINE.
// Catches middleware ordering, route grouping, and real HTTP cookie/redirect behavior
// that httptest.NewRecorder cannot exercise.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MGallo-Code/hermes/internal/auth"
	"github.com/MGallo-Code/hermes/internal/notify"
	"github.com/MGallo-Code/hermes/internal/oauth"
	"github.com/MGallo-Code/hermes/internal/store"
	"github.com/MGallo-Code/hermes/internal/testutil"
)

// --- Helpers ---

type smoke struct {
	h    *auth.AuthHandler
	srv  *httptest.Server
	line *testutil.FakeLine
	ps   *testutil.MockStore
}

// newSmoke serves buildRouter over a handler backed by mocks and a fake LINE.
func newSmoke(t *testing.T, accounts ...*store.Account) *smoke {
	t.Helper()
	line := testutil.NewFakeLine(t)
	ps := testutil.NewMockStore(accounts...)
	rs := testutil.NewMockCache()
	h := &auth.AuthHandler{
		PS:               ps,
		RS:               rs,
		Login:            line.LoginProvider(),
		Notify:           line.NotifyProvider(),
		IDTokens:         &oauth.IDTokenDecoder{},
		State:            &auth.StateGuard{Store: rs, TTL: 10 * time.Minute},
		Sessions:         &auth.SessionIssuer{Store: rs, TTL: time.Hour, BootstrapID: 1},
		Linker:           &auth.AccountLinker{Store: ps},
		Grants:           &notify.GrantManager{Store: ps, Remote: line.NotifyClient()},
		Dispatcher:       &notify.Dispatcher{Recipients: ps, Pusher: line.NotifyClient(), Concurrency: 2},
		BroadcastMessage: "Hello LINENotify!",
	}
	srv := httptest.NewServer(buildRouter(h))
	t.Cleanup(srv.Close)
	return &smoke{h: h, srv: srv, line: line, ps: ps}
}

// get performs a GET without following redirects. cookie may be empty.
// Caller must close resp.Body.
func (s *smoke) get(t *testing.T, path, cookie string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if cookie != "" {
		// __Host- cookies are Secure, so a jar would not replay them over plain http.
		req.Header.Set("Cookie", "__Host-session="+cookie)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// sessionCookie returns the __Host-session cookie set by resp, or nil.
func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "__Host-session" {
			return c
		}
	}
	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return strings.TrimSpace(string(b))
}

// startFlow hits an authorize route and returns the state from the provider
// redirect plus the session cookie in effect afterwards.
func (s *smoke) startFlow(t *testing.T, path, cookie string) (state, newCookie string) {
	t.Helper()
	resp := s.get(t, path, cookie)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("%s: expected 302, got %d", path, resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	newCookie = cookie
	if c := sessionCookie(resp); c != nil {
		newCookie = c.Value
	}
	return loc.Query().Get("state"), newCookie
}

// signIn runs the full login round-trip for subject and returns the signed-in cookie.
func (s *smoke) signIn(t *testing.T, subject, name string) string {
	t.Helper()
	state, cookie := s.startFlow(t, "/signin", "")
	if state == "" || cookie == "" {
		t.Fatalf("signin: state %q, cookie %q", state, cookie)
	}

	code := "code-" + subject
	s.line.AddLogin(code, "at-"+subject, testutil.IDToken(subject, name, subject+"@example.com", ""),
		oauth.Profile{UserID: subject, DisplayName: name})

	resp := s.get(t, "/signin-callback?code="+code+"&state="+state, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin-callback: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	c := sessionCookie(resp)
	resp.Body.Close()
	if c == nil || c.Value == "" {
		t.Fatal("signin-callback did not issue a session cookie")
	}
	if c.Value == cookie {
		t.Error("session was not rotated at login")
	}
	return c.Value
}

// --- Smoke tests ---

// TestSmoke_Health verifies /health is mounted and reports both stores.
func TestSmoke_Health(t *testing.T) {
	s := newSmoke(t)

	resp := s.get(t, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
	}
	if err := json.Unmarshal([]byte(readBody(t, resp)), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Postgres != "ok" || body.Redis != "ok" {
		t.Errorf("body: %+v", body)
	}
}

// TestSmoke_SignedInRoutes_RedirectAnonymous verifies RequireAuth guards every signed-in route.
func TestSmoke_SignedInRoutes_RedirectAnonymous(t *testing.T) {
	s := newSmoke(t)

	for _, path := range []string{"/subscribe", "/subscribe-callback", "/unsubscribe", "/my", "/profile", "/notifyall", "/subscribers"} {
		t.Run(path, func(t *testing.T) {
			resp := s.get(t, path, "")
			resp.Body.Close()
			if resp.StatusCode != http.StatusFound {
				t.Fatalf("status: expected 302, got %d", resp.StatusCode)
			}
			if loc := resp.Header.Get("Location"); loc != "/signin" {
				t.Errorf("Location: expected /signin, got %q", loc)
			}
		})
	}
}

// TestSmoke_AdminRoutes_ForbidNonAdmin verifies RequireAdmin is wired after RequireAuth.
func TestSmoke_AdminRoutes_ForbidNonAdmin(t *testing.T) {
	s := newSmoke(t, &store.Account{ID: 1, LineUserID: "Uadmin", DisplayName: "Admin"})
	cookie := s.signIn(t, "Ubob", "Bob")

	for _, path := range []string{"/notifyall", "/subscribers"} {
		resp := s.get(t, path, cookie)
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, resp.StatusCode)
		}
	}
}

// TestSmoke_FullRoundTrip drives login, subscribe, broadcast, unsubscribe, and sign-out
// over real HTTP as the bootstrap admin.
func TestSmoke_FullRoundTrip(t *testing.T) {
	s := newSmoke(t)

	// Step 1: first login creates account 1, the bootstrap admin.
	cookie := s.signIn(t, "Uadmin", "Admin")

	resp := s.get(t, "/my", cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("my: expected 200, got %d", resp.StatusCode)
	}
	var me struct {
		ID               int64  `json:"id"`
		DisplayName      string `json:"display_name"`
		NotifySubscribed bool   `json:"notify_subscribed"`
	}
	if err := json.Unmarshal([]byte(readBody(t, resp)), &me); err != nil {
		t.Fatalf("decoding /my: %v", err)
	}
	if me.ID != 1 || me.DisplayName != "Admin" || me.NotifySubscribed {
		t.Errorf("my: %+v", me)
	}

	// Step 2: no subscribers yet.
	resp = s.get(t, "/notifyall", cookie)
	if got := readBody(t, resp); got != `{"message":"no subscribers"}` {
		t.Errorf("notifyall before subscribe: got %q", got)
	}

	// Step 3: subscribe to notify.
	state, cookie := s.startFlow(t, "/subscribe", cookie)
	s.line.AddNotifyCode("ncode", "ntok-admin")
	resp = s.get(t, "/subscribe-callback?code=ncode&state="+state, cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe-callback: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()

	// Step 4: broadcast reaches the one subscriber.
	resp = s.get(t, "/notifyall", cookie)
	var lines []string
	if err := json.Unmarshal([]byte(readBody(t, resp)), &lines); err != nil {
		t.Fatalf("decoding /notifyall: %v", err)
	}
	if len(lines) != 2 || lines[0] != "Sending to Admin: ok" || lines[1] != "We already notified 1 subscribers!" {
		t.Errorf("notifyall lines: %v", lines)
	}
	if pushes := s.line.Pushes(); len(pushes) != 1 || pushes[0].Token != "ntok-admin" {
		t.Errorf("pushes: %+v", pushes)
	}

	// Step 5: unsubscribe revokes remotely and clears locally.
	resp = s.get(t, "/unsubscribe", cookie)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unsubscribe: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if s.ps.Account(1).HasNotifyGrant() {
		t.Error("notify grant should be cleared after unsubscribe")
	}

	// Step 6: sign out clears the cookie and the login tokens.
	resp = s.get(t, "/signout", cookie)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("signout: expected 200, got %d", resp.StatusCode)
	}
	if c := sessionCookie(resp); c == nil || c.MaxAge != -1 {
		t.Errorf("signout cookie: expected cleared, got %+v", c)
	}
	resp.Body.Close()
	if a := s.ps.Account(1); a.LoginAccessToken != "" || a.LoginIDToken != "" {
		t.Errorf("login tokens should be cleared: %+v", a)
	}
	if rv := s.line.RevokedLogin(); len(rv) != 1 || rv[0] != "at-Uadmin" {
		t.Errorf("revoked login tokens: %v", rv)
	}

	// Step 7: the old cookie no longer signs anyone in.
	resp = s.get(t, "/my", cookie)
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/signin" {
		t.Errorf("my after signout: got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

// slowPusher takes delay per push and fails if the push context ends first.
type slowPusher struct {
	delay time.Duration
	sent  atomic.Int32
}

func (p *slowPusher) Push(ctx context.Context, _, _ string) (*notify.Result, error) {
	select {
	case <-time.After(p.delay):
		p.sent.Add(1)
		return &notify.Result{HTTPStatus: http.StatusOK, Status: 200, Message: "ok"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TestSmoke_NotifyAll_OutlivesRequestTimeout verifies a broadcast longer than the
// request timeout still reaches every subscriber.
func TestSmoke_NotifyAll_OutlivesRequestTimeout(t *testing.T) {
	orig := requestTimeout
	requestTimeout = 200 * time.Millisecond
	t.Cleanup(func() { requestTimeout = orig })

	accounts := []*store.Account{{ID: 1, LineUserID: "Uadmin", DisplayName: "Admin"}}
	for i := int64(2); i <= 6; i++ {
		accounts = append(accounts, &store.Account{
			ID: i, LineUserID: fmt.Sprintf("U%d", i), DisplayName: fmt.Sprintf("Sub%d", i), NotifyAccessToken: fmt.Sprintf("nt-%d", i),
		})
	}
	s := newSmoke(t, accounts...)
	p := &slowPusher{delay: 60 * time.Millisecond}
	s.h.Dispatcher = &notify.Dispatcher{Recipients: s.ps, Pusher: p, Concurrency: 1}
	cookie := s.signIn(t, "Uadmin", "Admin")

	resp := s.get(t, "/notifyall", cookie)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifyall: expected 200, got %d", resp.StatusCode)
	}
	var lines []string
	if err := json.Unmarshal([]byte(readBody(t, resp)), &lines); err != nil {
		t.Fatalf("decoding /notifyall: %v", err)
	}
	if got := p.sent.Load(); got != 5 {
		t.Errorf("pushes sent: got %d, want 5", got)
	}
	if len(lines) != 6 {
		t.Fatalf("lines: got %v", lines)
	}
	for _, l := range lines[:5] {
		if !strings.HasSuffix(l, ": ok") {
			t.Errorf("outcome line: got %q", l)
		}
	}
	if lines[5] != "We already notified 5 subscribers!" {
		t.Errorf("summary: got %q", lines[5])
	}
}
