package canvas

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/florianilch/canvaskit/tokensource"
	"github.com/florianilch/canvaskit/tokenstore"
)

// Credentials identify the Canvas instance and developer key.
type Credentials = tokensource.Credentials

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// HTTPDoer is the transport capability the client sends requests through.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenProvider supplies the bearer token for each request.
type TokenProvider interface {
	ValidToken(ctx context.Context) (string, error)
}

// Refresher forces a new access token. Providers implementing it enable
// recovery from 401 responses.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// staticToken is a TokenProvider for a fixed access token.
type staticToken string

func (t staticToken) ValidToken(context.Context) (string, error) {
	return string(t), nil
}

// Client sends requests to one Canvas instance.
type Client struct {
	baseURL   string
	http      HTTPDoer
	tokens    TokenProvider
	refresher Refresher
	manager   *tokensource.Manager
	logger    *slog.Logger
}

type clientOptions struct {
	httpClient  HTTPDoer
	store       tokenstore.Store
	accessToken string
	autoRefresh bool
	provider    TokenProvider
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient replaces the default HTTP client. The default wraps
// http.DefaultTransport with WrapTransport and a 30 second timeout.
func WithHTTPClient(client HTTPDoer) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithTokenStore sets where token state is persisted. Defaults to process memory.
func WithTokenStore(store tokenstore.Store) Option {
	return func(o *clientOptions) {
		o.store = store
	}
}

// WithAccessToken sets a fixed access token. With auto-refresh and a refresh
// token configured it only seeds the token manager.
func WithAccessToken(token string) Option {
	return func(o *clientOptions) {
		o.accessToken = token
	}
}

// WithAutoRefresh toggles refreshing through the refresh-token grant. Enabled by default.
func WithAutoRefresh(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoRefresh = enabled
	}
}

// WithTokenProvider uses provider instead of building a token manager from the credentials.
// If it also implements Refresher and auto-refresh is enabled, 401 responses are retried.
func WithTokenProvider(provider TokenProvider) Option {
	return func(o *clientOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// New creates a Client for creds.Domain.
//
// Tokens come from, in order: a provider given with WithTokenProvider; a
// tokensource.Manager when auto-refresh is on and a refresh token is set; the
// token given with WithAccessToken. With none of these New fails with a
// MissingCredentialError.
func New(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	o := clientOptions{autoRefresh: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: WrapTransport(http.DefaultTransport, o.logger),
		}
	}

	creds = creds.Normalize()
	if creds.Domain == "" {
		return nil, &MissingCredentialError{Field: "domain"}
	}

	c := &Client{
		baseURL: creds.Domain,
		http:    o.httpClient,
		logger:  o.logger,
	}

	switch {
	case o.provider != nil:
		c.tokens = o.provider
		if m, ok := o.provider.(*tokensource.Manager); ok {
			c.manager = m
		}
		if r, ok := o.provider.(Refresher); ok && o.autoRefresh {
			c.refresher = r
		}

	case o.autoRefresh && creds.RefreshToken != "":
		manager, err := tokensource.New(ctx, creds, o.store,
			tokensource.WithHTTPClient(o.httpClient),
			tokensource.WithLogger(o.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create token manager: %w", err)
		}
		if o.accessToken != "" && manager.IsExpired() {
			if err := manager.SetAccessToken(ctx, o.accessToken, 0); err != nil {
				o.logger.WarnContext(ctx, "failed to persist configured access token", "error", err)
			}
		}
		c.tokens = manager
		c.refresher = manager
		c.manager = manager

	case o.accessToken != "":
		c.tokens = staticToken(o.accessToken)

	default:
		return nil, &MissingCredentialError{Field: "token"}
	}

	return c, nil
}

// NewRequest starts an empty request.
func (c *Client) NewRequest() *RequestBuilder {
	return &RequestBuilder{client: c}
}

// Courses starts a GET of the current user's courses.
func (c *Client) Courses() *RequestBuilder {
	return c.NewRequest().Endpoint("/api/v1/courses").Method(http.MethodGet)
}

// Tokens returns the token manager, or nil when the client uses a static token
// or a provider that is not a *tokensource.Manager.
func (c *Client) Tokens() *tokensource.Manager {
	return c.manager
}

// Domain returns the normalized base URL.
func (c *Client) Domain() string {
	return c.baseURL
}

// send issues spec once, and once more after a refresh if the token was rejected.
func (c *Client) send(ctx context.Context, spec RequestSpec) (*Envelope, error) {
	status, header, body, err := c.roundTrip(ctx, spec)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && c.refresher != nil {
		unauthorized := newAPIError(status, body)
		c.logger.InfoContext(ctx, "access token rejected, refreshing",
			"method", spec.method(),
			"endpoint", spec.Endpoint,
		)

		if err := c.refresher.Refresh(ctx); err != nil {
			return nil, &AuthRefreshError{Unauthorized: unauthorized, Refresh: err}
		}

		status, header, body, err = c.roundTrip(ctx, spec)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		apiErr := newAPIError(status, body)
		c.logger.DebugContext(ctx, "canvas api error",
			"method", spec.method(),
			"endpoint", spec.Endpoint,
			"status_code", status,
			"error", apiErr.Message,
		)
		return nil, apiErr
	}

	return newEnvelope(status, header, body)
}

// roundTrip obtains a token, builds and issues one request and reads the response body.
func (c *Client) roundTrip(ctx context.Context, spec RequestSpec) (int, http.Header, []byte, error) {
	token, err := c.tokens.ValidToken(ctx)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	req, err := spec.Build(ctx, c.baseURL, token)
	if err != nil {
		return 0, nil, nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, resp.Header, body, nil
}
