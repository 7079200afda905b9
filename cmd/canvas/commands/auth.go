package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/canvaskit/tokensource"
)

// errStaticToken is returned by auth commands when no token manager is configured.
var errStaticToken = errors.New("auth commands need auto_refresh enabled; a static access token is in use")

// authCommand returns the 'auth' subcommand for inspecting and seeding token state.
func (r *runtime) authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Canvas tokens",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the cached token state",
				Action: r.authStatusAction,
			},
			{
				Name:   "refresh",
				Usage:  "Exchange the refresh token for a new access token",
				Action: r.authRefreshAction,
			},
			{
				Name:      "set-token",
				Usage:     "Store an access or refresh token",
				ArgsUsage: "[token]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "store a refresh token instead of an access token",
					},
					&cli.DurationFlag{
						Name:  "expires-in",
						Usage: "access token lifetime",
						Value: tokensource.DefaultExpiresIn,
					},
				},
				Action: r.authSetTokenAction,
			},
			{
				Name:   "logout",
				Usage:  "Forget the cached access token",
				Action: r.authLogoutAction,
			},
		},
	}
}

func (r *runtime) tokens(ctx context.Context, cmd *cli.Command) (*tokensource.Manager, error) {
	application, err := r.open(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if application.Tokens == nil {
		return nil, errStaticToken
	}
	return application.Tokens, nil
}

func (r *runtime) authStatusAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := r.tokens(ctx, cmd)
	if err != nil {
		return err
	}

	state := manager.Snapshot()
	w := cmd.Root().Writer

	fmt.Fprintf(w, "Domain:        %s\n", manager.Domain())
	fmt.Fprintf(w, "Store:         %s (key %s)\n", r.app.Config.Store.Type, manager.CacheKey())
	fmt.Fprintf(w, "Refresh token: %s\n", presence(state.RefreshToken))
	fmt.Fprintf(w, "Access token:  %s\n", presence(state.AccessToken))
	if expiresAt := manager.ExpiresAt(); !expiresAt.IsZero() {
		fmt.Fprintf(w, "Expires at:    %s\n", expiresAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Expired:       %t\n", manager.IsExpired())

	return nil
}

func (r *runtime) authRefreshAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := r.tokens(ctx, cmd)
	if err != nil {
		return err
	}

	if err := manager.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "Access token refreshed, expires at %s\n",
		manager.ExpiresAt().Format(time.RFC3339))
	return nil
}

func (r *runtime) authSetTokenAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := r.tokens(ctx, cmd)
	if err != nil {
		return err
	}

	kind := "access"
	if cmd.Bool("refresh") {
		kind = "refresh"
	}

	token := cmd.Args().First()
	if token == "" {
		token, err = readSecureInput(ctx, fmt.Sprintf("Enter %s token: ", kind))
		if err != nil {
			return err
		}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s token cannot be empty", kind)
	}

	if cmd.Bool("refresh") {
		err = manager.SetRefreshToken(ctx, token)
	} else {
		err = manager.SetAccessToken(ctx, token, cmd.Duration("expires-in"))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "%s token saved to %s store\n", capitalize(kind), r.app.Config.Store.Type)
	return nil
}

func (r *runtime) authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	manager, err := r.tokens(ctx, cmd)
	if err != nil {
		return err
	}

	if err := manager.ClearCache(ctx); err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, "Cached access token cleared")
	return nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}

func presence(s string) string {
	if s == "" {
		return "missing"
	}
	return "present"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
