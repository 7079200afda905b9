package tokensource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/canvaskit/tokenstore"
)

const (
	// ExpiryMargin is how long before expiry a token is already treated as expired.
	ExpiryMargin = 300 * time.Second

	// DefaultExpiresIn applies when the token response has no expires_in.
	DefaultExpiresIn = 3600 * time.Second

	// StoreGrace is added to the remaining token lifetime when persisting state.
	StoreGrace = time.Hour

	maxTokenResponseBytes = 1 << 20
)

// HTTPDoer is the transport capability used for refresh requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// State is the token state mirrored into the store.
// ExpiresAt is in epoch seconds; zero means unknown, which counts as expired.
type State struct {
	AccessToken  string `json:"access_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
}

// Manager produces a currently-valid access token, refreshing through the
// refresh-token grant when needed.
type Manager struct {
	creds  Credentials
	store  tokenstore.Store
	key    string
	client HTTPDoer
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for refresh requests.
func WithHTTPClient(client HTTPDoer) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a Manager and loads any state previously persisted for the same
// domain and client ID. A nil store keeps state in memory only.
func New(ctx context.Context, creds Credentials, store tokenstore.Store, opts ...Option) (*Manager, error) {
	creds = creds.Normalize()
	if creds.Domain == "" {
		return nil, &MissingCredentialError{Field: "domain"}
	}
	if store == nil {
		store = tokenstore.NewMemory()
	}

	m := &Manager{
		creds:  creds,
		store:  store,
		key:    CacheKey(creds.Domain, creds.ClientID),
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
		now:    time.Now,
		state:  State{RefreshToken: creds.RefreshToken},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.load(ctx)

	return m, nil
}

// load restores persisted state. Store failures leave the manager empty;
// the next ValidToken call refreshes.
func (m *Manager) load(ctx context.Context) {
	data, err := m.store.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			m.logger.WarnContext(ctx, "failed to load cached token state", "domain", m.creds.Domain, "error", err)
		}
		return
	}

	var cached State
	if err := json.Unmarshal(data, &cached); err != nil {
		m.logger.WarnContext(ctx, "discarding unreadable cached token state", "domain", m.creds.Domain, "error", err)
		return
	}

	m.state.AccessToken = cached.AccessToken
	m.state.ExpiresAt = cached.ExpiresAt
	if cached.RefreshToken != "" {
		m.state.RefreshToken = cached.RefreshToken
	}
}

// ValidToken returns an access token that does not expire within ExpiryMargin,
// refreshing first when necessary. If the refresh fails while the held token
// is still strictly valid, that token is returned instead of the error.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isExpiredLocked() {
		return m.state.AccessToken, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		if m.state.AccessToken != "" && m.state.ExpiresAt != 0 && m.now().Unix() < m.state.ExpiresAt {
			m.logger.WarnContext(ctx, "token refresh failed, using token inside expiry margin",
				"domain", m.creds.Domain,
				"expires_at", time.Unix(m.state.ExpiresAt, 0).UTC(),
				"error", err,
			)
			return m.state.AccessToken, nil
		}
		return "", err
	}

	return m.state.AccessToken, nil
}

// IsExpired reports whether no token is held or less than ExpiryMargin of
// its lifetime remains.
func (m *Manager) IsExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.isExpiredLocked()
}

func (m *Manager) isExpiredLocked() bool {
	if m.state.AccessToken == "" || m.state.ExpiresAt == 0 {
		return true
	}
	// Strictly less: exactly ExpiryMargin of remaining life still counts as valid.
	return m.state.ExpiresAt-m.now().Unix() < int64(ExpiryMargin/time.Second)
}

// Refresh exchanges the refresh token for a new access token and persists the result.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.state.RefreshToken == "" {
		return ErrMissingRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.creds.ClientID)
	form.Set("client_secret", m.creds.ClientSecret)
	form.Set("refresh_token", m.state.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.Domain+m.creds.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &RefreshError{Message: "creating refresh request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.ErrorContext(ctx, "token refresh request failed", "domain", m.creds.Domain, "error", err)
		return &RefreshError{Message: "refresh request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return &RefreshError{StatusCode: resp.StatusCode, Message: "reading refresh response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := refreshErrorMessage(body, resp.StatusCode)
		m.logger.ErrorContext(ctx, "failed to refresh token",
			"domain", m.creds.Domain,
			"status_code", resp.StatusCode,
			"error", message,
		)
		return &RefreshError{StatusCode: resp.StatusCode, Message: message}
	}

	var token oauth2.Token
	if err := json.Unmarshal(body, &token); err != nil {
		return &RefreshError{StatusCode: resp.StatusCode, Message: "decoding refresh response", Err: err}
	}
	if token.AccessToken == "" {
		return &RefreshError{StatusCode: resp.StatusCode, Message: "invalid response from token endpoint: missing access_token"}
	}

	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int64(DefaultExpiresIn / time.Second)
	}

	now := m.now()
	m.state.AccessToken = token.AccessToken
	m.state.ExpiresAt = now.Unix() + expiresIn
	if token.RefreshToken != "" {
		m.state.RefreshToken = token.RefreshToken
	}

	// The new token is usable even if it could not be cached.
	if err := m.persistLocked(ctx); err != nil {
		m.logger.WarnContext(ctx, "failed to cache refreshed token", "domain", m.creds.Domain, "error", err)
	}

	m.logger.InfoContext(ctx, "token refreshed",
		"domain", m.creds.Domain,
		"expires_at", time.Unix(m.state.ExpiresAt, 0).UTC(),
	)

	return nil
}

// refreshErrorMessage extracts an OAuth2 error description from a failed response.
func refreshErrorMessage(body []byte, status int) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorDescription != "" {
			return payload.ErrorDescription
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return http.StatusText(status)
}

// persistLocked writes State with a TTL of the remaining lifetime plus StoreGrace.
func (m *Manager) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("failed to marshal token state: %w", err)
	}

	ttl := StoreGrace
	if m.state.ExpiresAt != 0 {
		ttl += time.Duration(m.state.ExpiresAt-m.now().Unix()) * time.Second
	}

	return m.store.Put(ctx, m.key, data, ttl)
}

// SetAccessToken installs a token without a refresh and persists it.
// A non-positive expiresIn defaults to DefaultExpiresIn.
func (m *Manager) SetAccessToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.AccessToken = token
	m.state.ExpiresAt = m.now().Add(expiresIn).Unix()

	if err := m.persistLocked(ctx); err != nil {
		return fmt.Errorf("failed to persist access token: %w", err)
	}
	return nil
}

// SetRefreshToken replaces the refresh token and persists it.
func (m *Manager) SetRefreshToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.RefreshToken = token

	if err := m.persistLocked(ctx); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return nil
}

// ClearCache forgets persisted state and drops the in-memory access token.
// The refresh token is kept so the next call can refresh again.
func (m *Manager) ClearCache(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.AccessToken = ""
	m.state.ExpiresAt = 0

	if err := m.store.Forget(ctx, m.key); err != nil {
		return fmt.Errorf("failed to clear token cache: %w", err)
	}
	return nil
}

// AccessToken returns the held access token without checking expiry.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.AccessToken
}

// RefreshToken returns the current, possibly rotated, refresh token.
func (m *Manager) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.RefreshToken
}

// ExpiresAt returns the access token expiry, or the zero time if unknown.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(m.state.ExpiresAt, 0)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Domain returns the normalized Canvas domain.
func (m *Manager) Domain() string {
	return m.creds.Domain
}

// CacheKey returns the store key this manager persists under.
func (m *Manager) CacheKey() string {
	return m.key
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	access, err := m.ValidToken(context.Background())
	if err != nil {
		return nil, err
	}

	state := m.Snapshot()
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: state.RefreshToken,
		Expiry:       time.Unix(state.ExpiresAt, 0),
	}, nil
}

var _ oauth2.TokenSource = (*Manager)(nil)
