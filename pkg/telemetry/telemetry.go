// Package telemetry provides optional OpenTelemetry instrumentation for
// the router's middleware chain: a span per dispatched method and a
// counter of responses by method and JSON-RPC error code. This package
// only emits spans and metrics through whatever TracerProvider/
// MeterProvider the host process has registered (the global no-op
// implementations if none); wiring an actual exporter is the embedding
// host's concern, consistent with telemetry exporters living outside this
// core.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/turbomcp/turbomcp/pkg/protocol"
	"github.com/turbomcp/turbomcp/pkg/reqcontext"
	"github.com/turbomcp/turbomcp/pkg/router"
)

// spanMetadataKey is the reqcontext metadata key the before hook stashes
// its span under, for the matching after hook to find and end.
const spanMetadataKey = "telemetry.span"

// Hooks builds a before/after hook pair for router.Chain.Use/UseAfter: the
// before hook opens a span named after the dispatched method, and the
// after hook closes it, marking it errored when the response carries a
// JSON-RPC error, then records one observation on the mcp.router.responses
// counter tagged by method and error code (0 for success).
func Hooks(tracer trace.Tracer, meter metric.Meter) (router.BeforeHook, router.AfterHook, error) {
	responses, err := meter.Int64Counter("mcp.router.responses",
		metric.WithDescription("MCP responses dispatched, by method and JSON-RPC error code"))
	if err != nil {
		return nil, nil, err
	}

	before := func(ctx *reqcontext.RequestContext, env protocol.Envelope) error {
		_, span := tracer.Start(ctx.Context, env.Method,
			trace.WithAttributes(attribute.String("mcp.method", env.Method)))
		ctx.Set(spanMetadataKey, span)
		return nil
	}

	after := func(ctx *reqcontext.RequestContext, env protocol.Envelope, resp *protocol.Envelope) error {
		var code int64
		if resp != nil && resp.Err != nil {
			code = int64(resp.Err.Code)
		}

		if raw, ok := ctx.Value2(spanMetadataKey); ok {
			if span, ok := raw.(trace.Span); ok {
				if code != 0 {
					span.SetStatus(codes.Error, resp.Err.Message)
				}
				span.End()
			}
		}

		responses.Add(ctx.Context, 1, metric.WithAttributes(
			attribute.String("mcp.method", env.Method),
			attribute.Int64("mcp.error_code", code),
		))
		return nil
	}

	return before, after, nil
}
