// exchange.go -- authorization code to token exchange.
package oauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// TokenResult is the provider's token endpoint reply. Only AccessToken and IDToken
// are consumed downstream; the rest is echoed back to the browser on success.
type TokenResult struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Exchange trades a single-use authorization code for tokens with one POST
// (grant_type=authorization_code). Never retried: a replayed code fails deterministically.
// Returns *ProviderError when the provider rejects the request and *TransportError
// when it cannot be reached or its reply cannot be read.
func (p *Provider) Exchange(ctx context.Context, code, redirectURI string) (*TokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client())

	tok, err := p.oauth2Config(redirectURI).Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, providerErrorFrom(re)
		}
		return nil, &TransportError{Op: p.Name + " token exchange", Err: err}
	}

	res := &TokenResult{
		AccessToken:  tok.AccessToken,
		ExpiresIn:    tok.ExpiresIn,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if res.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		res.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	if v, ok := tok.Extra("id_token").(string); ok {
		res.IDToken = v
	}
	if v, ok := tok.Extra("scope").(string); ok {
		res.Scope = v
	}
	return res, nil
}

// providerErrorFrom maps an x/oauth2 RetrieveError onto ProviderError,
// falling back to the raw body when x/oauth2 did not recognise the error fields.
func providerErrorFrom(re *oauth2.RetrieveError) *ProviderError {
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if re.ErrorCode != "" {
		return &ProviderError{Status: status, Code: re.ErrorCode, Description: re.ErrorDescription}
	}
	return newProviderError(status, re.Body)
}
