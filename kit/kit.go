// Package kit holds the transport-agnostic plumbing shared by the HTTP
// and MCP surfaces: the Endpoint abstraction, middleware chaining, and
// request-scoped context accessors.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one operation seen from a transport: decoding happens at
// the boundary, the endpoint receives only the typed request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one listed is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging returns a middleware that logs every endpoint call with its
// duration, correlated by the request ID and transport the boundary
// put into the context.
func Logging(name string, logger *slog.Logger) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			dur := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "kit: endpoint failed",
					"endpoint", name,
					"transport", GetTransport(ctx),
					"request_id", GetRequestID(ctx),
					"trace_id", GetTraceID(ctx),
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "kit: endpoint ok",
					"endpoint", name,
					"transport", GetTransport(ctx),
					"request_id", GetRequestID(ctx),
					"trace_id", GetTraceID(ctx),
					"duration_ms", dur.Milliseconds())
			}
			return resp, err
		}
	}
}
