// errors.go -- failure kinds for outbound provider calls.
package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProviderError is a well-formed error reply from the provider (invalid_grant,
// invalid_client, ...). Code and Description are the provider's own values and are
// passed back to the caller untouched.
type ProviderError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("provider error %d: %s: %s", e.Status, e.Code, e.Description)
}

// newProviderError reads the error fields from a non-success reply body.
// LINE Login answers {"error","error_description"}; LINE Notify answers
// {"status","message"}, whose message becomes Description.
func newProviderError(status int, body []byte) *ProviderError {
	pe := &ProviderError{Status: status}
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		pe.Code = payload.Error
		pe.Description = payload.ErrorDescription
		if pe.Description == "" {
			pe.Description = payload.Message
		}
	}
	return pe
}

// TransportError means the provider could not be reached (timeout, DNS, refused
// connection) or answered with something that could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsProviderError reports whether err carries a provider-reported error and returns it.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}

// IsTransportError reports whether err is a network-level or decode failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
