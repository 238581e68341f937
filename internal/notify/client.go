// client.go -- LINE Notify push and revoke API client.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result is the LINE Notify reply body shared by the notify and revoke endpoints.
// HTTPStatus is the transport status; Status is what the body claims.
type Result struct {
	HTTPStatus int    `json:"-"`
	Status     int    `json:"status"`
	Message    string `json:"message"`
}

// OK reports whether the provider accepted the call.
func (r *Result) OK() bool {
	return r.HTTPStatus == http.StatusOK
}

// Client calls the LINE Notify API with a per-account bearer token.
type Client struct {
	NotifyURL  string
	RevokeURL  string
	httpClient *http.Client
}

// NewClient returns a Client. A nil httpClient gets a default with timeout.
func NewClient(notifyURL, revokeURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{NotifyURL: notifyURL, RevokeURL: revokeURL, httpClient: httpClient}
}

// Push sends message to the account owning token.
// A reply of any status yields a Result; err is non-nil only when no usable reply arrived.
func (c *Client) Push(ctx context.Context, token, message string) (*Result, error) {
	form := url.Values{"message": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.NotifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("notify: building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, token)
}

// Revoke invalidates token at the provider. Same reply semantics as Push.
func (c *Client) Revoke(ctx context.Context, token string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RevokeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("notify: building revoke request: %w", err)
	}
	return c.do(req, token)
}

func (c *Client) do(req *http.Request, token string) (*Result, error) {
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{HTTPStatus: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("notify: reading response: %w", err)
	}
	if err := json.Unmarshal(body, res); err != nil {
		if res.OK() {
			return nil, fmt.Errorf("notify: decoding response: %w", err)
		}
		// Error replies without a JSON body still count as a provider answer.
		res.Status = resp.StatusCode
		res.Message = http.StatusText(resp.StatusCode)
	}
	return res, nil
}
