package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/florianilch/canvaskit/tokensource"
)

// Token errors surfaced unchanged from the token manager.
type (
	MissingCredentialError = tokensource.MissingCredentialError
	RefreshError           = tokensource.RefreshError
)

// ErrMissingRefreshToken is returned when a refresh is attempted without a refresh token.
var ErrMissingRefreshToken = tokensource.ErrMissingRefreshToken

// ErrPaginationUnavailable is returned by navigation methods on an Envelope
// that was not produced by a RequestBuilder.
var ErrPaginationUnavailable = errors.New("pagination is not available for this response")

// ErrMissingEndpoint is returned when a request is sent without an endpoint.
var ErrMissingEndpoint = errors.New("request has no endpoint")

// APIError is a non-2xx response from the Canvas API.
type APIError struct {
	StatusCode int
	Message    string

	// Body holds the raw response body, capped at the read limit.
	Body []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas api error (status %d): %s", e.StatusCode, e.Message)
}

// AuthRefreshError reports a 401 response whose recovery refresh also failed.
type AuthRefreshError struct {
	Unauthorized *APIError
	Refresh      error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("access token rejected and refresh failed: %v", e.Refresh)
}

// Unwrap exposes both the rejected request and the refresh failure to errors.Is/As.
func (e *AuthRefreshError) Unwrap() []error {
	return []error{e.Unauthorized, e.Refresh}
}

// newAPIError builds an APIError, extracting a message from the Canvas error shapes:
//
//	{"errors": [{"message": "..."}]}
//	{"errors": {"field": "..."}}
//	{"message": "..."}
//	{"error": "...", "error_description": "..."}
func newAPIError(status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		Message:    errorMessage(status, body),
		Body:       body,
	}
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Errors           json.RawMessage `json:"errors"`
		Message          string          `json:"message"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := errorsFieldMessage(payload.Errors); msg != "" {
			return msg
		}
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Error != "":
			return payload.Error
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unknown error"
}

func errorsFieldMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var list []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item.Message != "" {
				return item.Message
			}
		}
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err == nil {
		for _, key := range slices.Sorted(maps.Keys(fields)) {
			if s, ok := fields[key].(string); ok && s != "" {
				return key + ": " + s
			}
		}
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return ""
}
