package canvas

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// RequestIDHeader carries the correlation ID of outgoing requests.
const RequestIDHeader = "X-Request-ID"

// requestIDContextKey stores a caller-chosen request ID in a context.
type requestIDContextKey struct{}

// WithRequestID returns a context whose outgoing requests carry id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request ID set with WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey{}).(string)
	return id, ok && id != ""
}

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// WrapTransport decorates next with request ID assignment, W3C trace-context
// propagation and debug logging of each round trip. A nil next uses
// http.DefaultTransport and a nil logger uses slog.Default().
func WrapTransport(next http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}

	return applyMiddlewares(next,
		requestIDAssignment,
		traceContextInjection,
		requestLogging(logger),
	)
}

// requestIDAssignment sets X-Request-ID from the context, generating one if missing.
// An ID already present on the request is kept.
func requestIDAssignment(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}

		id, ok := RequestIDFromContext(r.Context())
		if !ok {
			id = uuid.New().String()
		}

		// RoundTrippers must not modify the caller's request.
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, id)

		return next.RoundTrip(r)
	})
}

// traceContextInjection writes Traceparent/Tracestate headers from the request
// context using the global propagator. Without an active span context nothing is added.
func traceContextInjection(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		carrier := propagation.HeaderCarrier(make(http.Header))
		otel.GetTextMapPropagator().Inject(r.Context(), carrier)
		if len(carrier) == 0 {
			return next.RoundTrip(r)
		}

		r = r.Clone(r.Context())
		for key, values := range carrier {
			r.Header[key] = values
		}
		return next.RoundTrip(r)
	})
}

// requestLogging logs method, path, status and duration at debug level.
// Headers and bodies are never logged; they carry bearer tokens and student data.
func requestLogging(logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
			ctx := r.Context()
			if !logger.Enabled(ctx, slog.LevelDebug) {
				return next.RoundTrip(r)
			}

			start := time.Now()
			resp, err := next.RoundTrip(r)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", r.Header.Get(RequestIDHeader),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.DebugContext(ctx, "canvas request failed", append(attrs, "error", err)...)
				return nil, err
			}

			logger.DebugContext(ctx, "canvas request", append(attrs, "status", resp.StatusCode)...)
			return resp, nil
		})
	}
}

// applyMiddlewares applies middlewares in the order they appear.
// The first middleware is the outermost (executes first).
func applyMiddlewares(rt http.RoundTripper, middlewares ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	for i := len(middlewares) - 1; i >= 0; i-- {
		rt = middlewares[i](rt)
	}
	return rt
}
