package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// PageSizeParam is the query parameter Canvas reads the page size from.
const PageSizeParam = "per_page"

// RequestSpec is the accumulated shape of one request.
type RequestSpec struct {
	Method   string
	Endpoint string
	Query    Query

	// Body holds flattened body fields. It is sent as JSON for methods other than GET and DELETE.
	Body map[string]any

	// Links holds the pagination links of the last response received for this request.
	Links map[string]string
}

// Clone returns a deep copy of the top-level containers.
func (s RequestSpec) Clone() RequestSpec {
	s.Query = s.Query.Clone()
	s.Body = maps.Clone(s.Body)
	s.Links = maps.Clone(s.Links)
	return s
}

func (s RequestSpec) method() string {
	if s.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(s.Method)
}

// sendsQuery reports whether the query string is attached for this method.
func (s RequestSpec) sendsQuery() bool {
	m := s.method()
	return m == http.MethodGet || m == http.MethodPost
}

// sendsBody reports whether a JSON body is attached for this method.
func (s RequestSpec) sendsBody() bool {
	m := s.method()
	return m != http.MethodGet && m != http.MethodDelete && len(s.Body) > 0
}

// URL resolves the endpoint against baseURL and appends the query string when the method carries one.
// Endpoints that are already absolute URLs are used as given.
func (s RequestSpec) URL(baseURL string) string {
	target := s.Endpoint
	if !strings.Contains(target, "://") {
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		target = strings.TrimRight(baseURL, "/") + target
	}

	if s.sendsQuery() && s.Query.Len() > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + s.Query.Encode()
	}
	return target
}

// Build turns s into an HTTP request. It performs no I/O and may be called repeatedly.
func (s RequestSpec) Build(ctx context.Context, baseURL, token string) (*http.Request, error) {
	if s.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	var body *bytes.Reader
	if s.sendsBody() {
		data, err := json.Marshal(s.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, s.method(), s.URL(baseURL), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, s.method(), s.URL(baseURL), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}
