package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for pilot tracing.
const tracerName = "github.com/probelab/pilot"

// Tracing returns middleware that wraps step execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: pilot.run.id, pilot.tenant_id,
// pilot.step.id, pilot.step.action, pilot.step.origin, pilot.attempt.
// On error, the span status is set to codes.Error with the error
// message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, sc *StepContext, next Handler) error {
		ctx, span := tracer.Start(ctx, "pilot.step.execute",
			trace.WithAttributes(
				attribute.String("pilot.run.id", sc.Run.ID.String()),
				attribute.String("pilot.tenant_id", sc.Run.TenantID),
				attribute.String("pilot.step.id", sc.Step.ID.String()),
				attribute.String("pilot.step.action", string(sc.Step.Action)),
				attribute.String("pilot.step.origin", string(sc.Step.Origin)),
				attribute.Int("pilot.attempt", sc.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
