package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/canvaskit/canvas"
	"github.com/florianilch/canvaskit/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCanvas struct {
	*httptest.Server
	tokenCalls atomic.Int32
}

func newFakeCanvas(t *testing.T) *fakeCanvas {
	t.Helper()

	f := &fakeCanvas{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "expires_in": 3600})
	})
	mux.HandleFunc("GET /api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "token": r.Header.Get("Authorization")},
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	return f
}

func loadConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()

	cfg, err := config.Load("", nil, overrides)
	require.NoError(t, err)
	return cfg
}

func courseToken(t *testing.T, a *App) string {
	t.Helper()

	env, err := a.Client.Courses().Get(context.Background())
	require.NoError(t, err)
	token, ok := env.Get("0.token")
	require.True(t, ok)
	return token.(string)
}

func TestNewStaticToken(t *testing.T) {
	srv := newFakeCanvas(t)
	cfg := loadConfig(t, map[string]any{
		"domain":       srv.URL,
		"auto_refresh": false,
		"access_token": "static",
		"store.type":   config.StoreMemory,
	})

	a, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Nil(t, a.Tokens)
	assert.Equal(t, "Bearer static", courseToken(t, a))
	assert.Zero(t, srv.tokenCalls.Load())
}

func TestNewStaticTokenRequired(t *testing.T) {
	cfg := loadConfig(t, map[string]any{
		"domain":       "https://canvas.test",
		"auto_refresh": false,
		"store.type":   config.StoreMemory,
	})

	_, err := New(context.Background(), cfg, WithLogger(quietLogger()))

	var missing *canvas.MissingCredentialError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "token", missing.Field)
}

func TestNewAutoRefresh(t *testing.T) {
	srv := newFakeCanvas(t)
	cfg := loadConfig(t, map[string]any{
		"domain":        srv.URL,
		"client_id":     "client",
		"client_secret": "secret",
		"refresh_token": "refresh",
		"store.type":    config.StoreMemory,
	})

	a, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NotNil(t, a.Tokens)
	assert.Equal(t, "Bearer fresh", courseToken(t, a))
	assert.Equal(t, "Bearer fresh", courseToken(t, a))
	assert.EqualValues(t, 1, srv.tokenCalls.Load())
}

func TestNewSeedsConfiguredAccessToken(t *testing.T) {
	srv := newFakeCanvas(t)
	cfg := loadConfig(t, map[string]any{
		"domain":        srv.URL,
		"client_id":     "client",
		"client_secret": "secret",
		"refresh_token": "refresh",
		"access_token":  "seeded",
		"store.type":    config.StoreMemory,
	})

	a, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.Equal(t, "Bearer seeded", courseToken(t, a))
	assert.Zero(t, srv.tokenCalls.Load())
}

func TestCloseReleasesStore(t *testing.T) {
	cfg := loadConfig(t, map[string]any{
		"domain":           "https://canvas.test",
		"access_token":     "static",
		"auto_refresh":     false,
		"store.type":       config.StoreSQL,
		"store.sql.driver": "sqlite3",
		"store.sql.dsn":    ":memory:",
	})

	a, err := New(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, isCloser := a.Store.(io.Closer)
	require.True(t, isCloser)
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
}

func TestWithTransport(t *testing.T) {
	var calls atomic.Int32
	base := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		assert.NotEmpty(t, r.Header.Get(canvas.RequestIDHeader))
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(jsonBody(`[]`)),
			Request:    r,
		}, nil
	})

	cfg := loadConfig(t, map[string]any{
		"domain":       "https://canvas.test",
		"access_token": "static",
		"auto_refresh": false,
		"store.type":   config.StoreMemory,
	})

	a, err := New(context.Background(), cfg, WithTransport(base), WithLogger(quietLogger()))
	require.NoError(t, err)

	env, err := a.Client.Courses().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, env.Len())
	assert.EqualValues(t, 1, calls.Load())
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
