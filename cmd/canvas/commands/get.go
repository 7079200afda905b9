package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/canvaskit/canvas"
)

// maxConcurrentGets bounds parallel requests when several endpoints are given.
const maxConcurrentGets = 4

// getResult is one endpoint's output. With a single endpoint only Data is printed.
type getResult struct {
	Endpoint string `json:"endpoint"`
	Data     any    `json:"data"`
}

func (r *runtime) getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET one or more API endpoints and print the JSON response",
		ArgsUsage: "<endpoint> [endpoint...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "query parameter as key=value (repeatable)",
			},
			&cli.IntFlag{
				Name:  "per-page",
				Usage: "page size sent as per_page",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "follow Link headers and concatenate every page",
			},
		},
		Action: r.getAction,
	}
}

func (r *runtime) getAction(ctx context.Context, cmd *cli.Command) error {
	endpoints := cmd.Args().Slice()
	if len(endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	params, err := parseQueryFlags(cmd.StringSlice("query"))
	if err != nil {
		return err
	}

	application, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}

	results := make([]getResult, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentGets)

	for i, endpoint := range endpoints {
		g.Go(func() error {
			data, err := fetch(gctx, application.Client, endpoint, params, cmd.Int("per-page"), cmd.Bool("all"))
			if err != nil {
				return fmt.Errorf("%s: %w", endpoint, err)
			}
			results[i] = getResult{Endpoint: endpoint, Data: data}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var out any = results
	if len(results) == 1 {
		out = results[0].Data
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// fetch issues one GET. With all set it walks every page through a Paginator.
func fetch(ctx context.Context, client *canvas.Client, endpoint string, params canvas.Query, perPage int, all bool) (any, error) {
	b := client.NewRequest().Endpoint(endpoint)
	for _, key := range params.Keys() {
		b.AddQueryVar(key, params.Values(key))
	}

	if all {
		items, err := b.Paginator(perPage).All(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []any{}
		}
		return items, nil
	}

	if perPage > 0 {
		b.PageSize(perPage)
	}
	env, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return env.Data(), nil
}

// parseQueryFlags turns repeated key=value flags into an ordered query.
// Repeating a key, e.g. include[]=term and include[]=teachers, keeps every value.
func parseQueryFlags(values []string) (canvas.Query, error) {
	var q canvas.Query
	for _, kv := range values {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return q, fmt.Errorf("invalid query %q (expected key=value)", kv)
		}
		q.Add(key, value)
	}
	return q, nil
}
