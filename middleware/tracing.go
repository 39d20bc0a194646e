package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keerthanap8898/TextToVideoAPI/job"
)

// tracerName is the instrumentation scope name for videogen tracing.
const tracerName = "github.com/keerthanap8898/TextToVideoAPI"

// Tracing returns middleware that wraps the attempt in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: videogen.job.id, videogen.job.attempt,
// videogen.partition, videogen.quality, videogen.duration_seconds.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "videogen.job.generate",
			trace.WithAttributes(
				attribute.String("videogen.job.id", j.ID.String()),
				attribute.Int("videogen.job.attempt", j.Attempt),
				attribute.Int("videogen.partition", j.Partition),
				attribute.String("videogen.quality", string(j.Params.Quality)),
				attribute.Int("videogen.duration_seconds", j.Params.DurationSeconds),
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
