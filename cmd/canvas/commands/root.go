package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/canvaskit/internal/app"
	"github.com/florianilch/canvaskit/internal/config"
	"github.com/florianilch/canvaskit/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	return newRootCommand(version, commit, os.Environ).Run(ctx, args)
}

// flagOverrides maps root flags to config keys. Only flags set on the command
// line override file and environment values.
var flagOverrides = map[string]string{
	"domain":       "domain",
	"store":        "store.type",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-exporter": "log.exporter",
}

// runtime carries state shared by the subcommands of one invocation.
type runtime struct {
	environ  func() []string
	app      *app.App
	shutdown []func(context.Context) error
}

func newRootCommand(version, commit string, environ func() []string) *cli.Command {
	r := &runtime{environ: environ}

	return &cli.Command{
		Name:    "canvas",
		Usage:   "Canvas LMS API client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (.toml, .yaml, .yml)",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
			&cli.StringFlag{
				Name:  "domain",
				Usage: "Canvas base URL, e.g. https://school.instructure.com",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "token store (memory|file|keyring|redis|s3|sql)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
			},
		},
		Commands: []*cli.Command{
			r.authCommand(),
			r.getCommand(),
			versionCommand(version, commit),
		},
		After: r.close,
	}
}

// open loads the configuration, installs logging and builds the app.
// Resources are released by close once the command finishes.
func (r *runtime) open(ctx context.Context, cmd *cli.Command) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}

	root := cmd.Root()
	overrides := make(map[string]any)
	for flag, key := range flagOverrides {
		if root.IsSet(flag) {
			overrides[key] = root.String(flag)
		}
	}

	cfg, err := config.Load(root.String("config"), r.environ, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, err
	}

	shutdownLogging, err := observability.Instrument(ctx, observability.Options{
		Level:    level,
		Format:   cfg.Log.Format,
		Exporter: cfg.Log.Exporter,
		Writer:   root.ErrWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	r.shutdown = append(r.shutdown, shutdownLogging)

	application, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	r.shutdown = append(r.shutdown, application.Close)
	r.app = application

	return application, nil
}

// close runs shutdown functions in reverse order, so the app is closed while
// logging is still installed.
func (r *runtime) close(ctx context.Context, _ *cli.Command) error {
	// The signal context may already be cancelled; exporters still need to flush.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(r.shutdown) - 1; i >= 0; i-- {
		if err := r.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.shutdown = nil
	r.app = nil

	return errors.Join(errs...)
}

func versionCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "canvas %s (commit %s)\n", version, commit)
			return err
		},
	}
}
