// provider.go -- OAuth2 provider configuration and authorization redirect building.
package oauth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// defaultHTTPTimeout bounds every outbound provider call when no client is injected.
const defaultHTTPTimeout = 10 * time.Second

// Provider is one fixed authorization-code endpoint set (LINE Login or LINE Notify).
// Both flows share the same redirect and exchange logic; only the configuration differs.
type Provider struct {
	Name         string
	ClientID     string
	ClientSecret string
	Scope        string // space-separated, sent as-is
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	ProfileURL   string // LINE Login only

	// RedirectURI is the configured callback. A relative value is resolved
	// against the incoming request so one config works on every host.
	RedirectURI string

	HTTPClient *http.Client
}

// client returns the injected HTTP client or a default with a timeout.
func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// oauth2Config builds the x/oauth2 view of this provider for one redirect URI.
// Client credentials travel in the form body, as LINE requires.
func (p *Provider) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       strings.Fields(p.Scope),
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.AuthURL,
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ResolveRedirectURI returns the configured redirect URI, resolving a relative
// value against the scheme and host (including port) of r.
func (p *Provider) ResolveRedirectURI(r *http.Request) string {
	ref, err := url.Parse(p.RedirectURI)
	if err != nil || ref.IsAbs() {
		return p.RedirectURI
	}
	base := &url.URL{Scheme: requestScheme(r), Host: r.Host, Path: "/"}
	return base.ResolveReference(ref).String()
}

// requestScheme prefers X-Forwarded-Proto (first hop) so redirects stay https behind a proxy.
func requestScheme(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// AuthCodeURL builds the consent page URL:
// response_type=code, client_id, redirect_uri, scope, state.
func (p *Provider) AuthCodeURL(state, redirectURI string) string {
	return p.oauth2Config(redirectURI).AuthCodeURL(state)
}
