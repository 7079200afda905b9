package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies log records emitted through the OpenTelemetry bridge.
const instrumentationName = "github.com/florianilch/canvaskit"

// Log exporters.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Options configures Instrument.
type Options struct {
	Level slog.Level

	// Format is "text" or "json". Used when Exporter is "none".
	Format string

	// Exporter selects an OpenTelemetry log exporter. Empty means "none".
	// OTLP endpoints are taken from the standard OTEL_EXPORTER_OTLP_* variables.
	Exporter string

	// Writer receives stdout output. Defaults to os.Stdout.
	Writer io.Writer
}

// Instrument installs the default slog logger. The returned function flushes
// and stops any exporter and must be called before exit.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	exporter := strings.ToLower(opts.Exporter)
	if exporter == "" || exporter == ExporterNone {
		handler, err := newStdoutHandler(opts.Writer, opts.Level, opts.Format)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(newTraceContextHandler(handler)))
		return func(context.Context) error { return nil }, nil
	}

	processor, err := newLogProcessor(ctx, exporter, opts.Writer)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severityFor(opts.Level))),
	)
	global.SetLoggerProvider(provider)

	slog.SetDefault(slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))))

	return provider.Shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLogProcessor creates the exporter pipeline. The stdout exporter is
// exported synchronously; OTLP exporters are batched.
func newLogProcessor(ctx context.Context, exporter string, w io.Writer) (sdklog.Processor, error) {
	switch exporter {
	case ExporterStdout:
		exp, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout log exporter: %w", err)
		}
		return sdklog.NewSimpleProcessor(exp), nil

	case ExporterOTLPHTTP:
		exp, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp http log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil

	case ExporterOTLPGRPC:
		exp, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp grpc log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil

	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-http, otlp-grpc)", exporter)
	}
}

// severityFor maps a slog level to the minimum exported severity.
func severityFor(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
