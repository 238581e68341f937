// line.go -- LINE Login profile lookup and access token revocation.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Profile is the LINE Login profile API reply. UserID is the stable subject id.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// FetchProfile calls ProfileURL with accessToken as a bearer credential.
// A missing UserID is not an error here; callers decide what an incomplete profile means.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var prof Profile
	if err := p.do(req, "profile fetch", &prof); err != nil {
		return nil, err
	}
	return &prof, nil
}

// RevokeToken revokes a LINE Login access token with the channel credentials
// (form body: client_id, client_secret, access_token).
func (p *Provider) RevokeToken(ctx context.Context, accessToken string) error {
	form := url.Values{
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
		"access_token":  {accessToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, "token revoke", nil)
}

// do sends req and decodes a 200 JSON body into out (nil discards it).
// Non-200 replies become *ProviderError; send and decode failures *TransportError.
func (p *Provider) do(req *http.Request, op string, out any) error {
	resp, err := p.client().Do(req)
	if err != nil {
		return &TransportError{Op: p.Name + " " + op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &TransportError{Op: p.Name + " " + op, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return newProviderError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: p.Name + " " + op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
