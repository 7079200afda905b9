package tokensource

import (
	"errors"
	"fmt"
)

// ErrMissingRefreshToken is returned when a refresh is attempted without a refresh token.
var ErrMissingRefreshToken = errors.New("refresh token is required for auto-refresh")

// MissingCredentialError reports a required credential absent at construction.
type MissingCredentialError struct {
	Field string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential: %s", e.Field)
}

// RefreshError reports a failed refresh-token exchange.
// StatusCode is zero when the request never produced a response.
type RefreshError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RefreshError) Error() string {
	msg := "failed to refresh token"
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
