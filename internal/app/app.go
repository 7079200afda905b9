package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/florianilch/canvaskit/canvas"
	"github.com/florianilch/canvaskit/internal/config"
	"github.com/florianilch/canvaskit/tokensource"
	"github.com/florianilch/canvaskit/tokenstore"
)

// App holds the token store, token manager and Canvas client built from a Config.
type App struct {
	Config *config.Config
	Store  tokenstore.Store
	Client *canvas.Client

	// Tokens is nil when auto-refresh is disabled and a static access token is used.
	Tokens *tokensource.Manager

	shutdownFuncs []func(context.Context) error
}

// Option configures an App.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

// WithTransport sets the base transport under the Canvas transport middleware.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New opens the configured token store and builds the client.
// Close must be called to release the store.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := cfg.Store.NewTokenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	a := &App{Config: cfg, Store: store}
	if closer, ok := store.(io.Closer); ok {
		a.shutdownFuncs = append(a.shutdownFuncs, func(context.Context) error {
			return closer.Close()
		})
	}

	if err := a.buildClient(ctx, o); err != nil {
		return nil, errors.Join(err, a.Close(ctx))
	}

	o.logger.DebugContext(ctx, "canvas client ready",
		"domain", a.Client.Domain(),
		"store", cfg.Store.Type,
		"auto_refresh", a.Tokens != nil,
	)

	return a, nil
}

func (a *App) buildClient(ctx context.Context, o options) error {
	cfg := a.Config
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: canvas.WrapTransport(o.transport, o.logger),
	}

	clientOpts := []canvas.Option{
		canvas.WithHTTPClient(httpClient),
		canvas.WithLogger(o.logger),
	}

	if cfg.AutoRefresh {
		manager, err := tokensource.New(ctx, cfg.Credentials(), a.Store,
			tokensource.WithHTTPClient(httpClient),
			tokensource.WithLogger(o.logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create token manager: %w", err)
		}
		if cfg.AccessToken != "" && manager.IsExpired() {
			if err := manager.SetAccessToken(ctx, cfg.AccessToken, 0); err != nil {
				o.logger.WarnContext(ctx, "failed to persist configured access token", "error", err)
			}
		}
		a.Tokens = manager
		clientOpts = append(clientOpts, canvas.WithTokenProvider(manager))
	} else {
		clientOpts = append(clientOpts,
			canvas.WithAccessToken(cfg.AccessToken),
			canvas.WithAutoRefresh(false),
		)
	}

	client, err := canvas.New(ctx, cfg.Credentials(), clientOpts...)
	if err != nil {
		return fmt.Errorf("failed to create canvas client: %w", err)
	}
	a.Client = client

	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.shutdownFuncs) - 1; i >= 0; i-- {
		if err := a.shutdownFuncs[i](ctx); err != nil {
			slog.ErrorContext(ctx, "shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}
	a.shutdownFuncs = nil

	return errors.Join(errs...)
}
