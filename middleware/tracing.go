package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/accord/workflow"
)

// tracerName is the instrumentation scope name for accord tracing.
const tracerName = "github.com/xraph/accord"

// Tracing returns middleware that wraps task execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: accord.task.id, accord.task.spec_id,
// accord.task.type, accord.execution.id, accord.attempt_count.
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
	return func(ctx context.Context, t *workflow.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "accord.task.execute",
			trace.WithAttributes(
				attribute.String("accord.task.id", t.ID.String()),
				attribute.String("accord.task.spec_id", t.SpecID),
				attribute.String("accord.task.type", string(t.Type)),
				attribute.String("accord.execution.id", t.ExecutionID.String()),
				attribute.Int("accord.attempt_count", t.AttemptCount),
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
