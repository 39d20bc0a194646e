// Package observability provides a lifecycle extension that records
// pipeline-wide metrics via OpenTelemetry: submission and outcome
// counters plus an end-to-end job duration histogram. Register it with
// the hook registry to track throughput and failure rates; it
// complements the per-attempt middleware metrics, which see one
// generation attempt at a time rather than the whole job.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keerthanap8898/TextToVideoAPI/hook"
	"github.com/keerthanap8898/TextToVideoAPI/job"
)

const meterName = "github.com/keerthanap8898/TextToVideoAPI/observability"

// Compile-time interface checks.
var (
	_ hook.Extension     = (*MetricsExtension)(nil)
	_ hook.JobSubmitted  = (*MetricsExtension)(nil)
	_ hook.JobDispatched = (*MetricsExtension)(nil)
	_ hook.JobSucceeded  = (*MetricsExtension)(nil)
	_ hook.JobFailed     = (*MetricsExtension)(nil)
	_ hook.JobRequeued   = (*MetricsExtension)(nil)
	_ hook.JobDLQ        = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle metrics for every job moving
// through the pipeline.
type MetricsExtension struct {
	submitted  metric.Int64Counter
	dispatched metric.Int64Counter
	succeeded  metric.Int64Counter
	failed     metric.Int64Counter
	requeued   metric.Int64Counter
	dlq        metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the given
// meter. Instrument creation errors leave the otel no-op instruments in
// place; metrics must never block the pipeline.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	m.submitted, _ = meter.Int64Counter("videogen.jobs.submitted",
		metric.WithDescription("Jobs accepted for generation"),
		metric.WithUnit("{job}"),
	)
	m.dispatched, _ = meter.Int64Counter("videogen.jobs.dispatched",
		metric.WithDescription("Generation attempts started"),
		metric.WithUnit("{attempt}"),
	)
	m.succeeded, _ = meter.Int64Counter("videogen.jobs.succeeded",
		metric.WithDescription("Jobs that produced an artifact"),
		metric.WithUnit("{job}"),
	)
	m.failed, _ = meter.Int64Counter("videogen.jobs.failed",
		metric.WithDescription("Jobs that failed terminally"),
		metric.WithUnit("{job}"),
	)
	m.requeued, _ = meter.Int64Counter("videogen.jobs.requeued",
		metric.WithDescription("Attempts abandoned and requeued"),
		metric.WithUnit("{attempt}"),
	)
	m.dlq, _ = meter.Int64Counter("videogen.jobs.dead_lettered",
		metric.WithDescription("Jobs moved to the dead letter queue"),
		metric.WithUnit("{job}"),
	)
	m.duration, _ = meter.Float64Histogram("videogen.job.duration",
		metric.WithDescription("Submit-to-terminal job duration"),
		metric.WithUnit("s"),
	)
	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func qualityAttr(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("quality", string(j.Params.Quality)))
}

// OnJobSubmitted implements hook.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(ctx context.Context, j *job.Job) error {
	m.submitted.Add(ctx, 1, qualityAttr(j))
	return nil
}

// OnJobDispatched implements hook.JobDispatched.
func (m *MetricsExtension) OnJobDispatched(ctx context.Context, j *job.Job) error {
	m.dispatched.Add(ctx, 1, qualityAttr(j))
	return nil
}

// OnJobSucceeded implements hook.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.succeeded.Add(ctx, 1, qualityAttr(j))
	m.recordDuration(ctx, j, "succeeded")
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, jobErr *job.Error) error {
	kind := job.KindInternal
	if jobErr != nil {
		kind = jobErr.Kind
	}
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("quality", string(j.Params.Quality)),
		attribute.String("kind", string(kind)),
	))
	m.recordDuration(ctx, j, "failed")
	return nil
}

// OnJobRequeued implements hook.JobRequeued.
func (m *MetricsExtension) OnJobRequeued(ctx context.Context, j *job.Job, _ time.Time) error {
	m.requeued.Add(ctx, 1, qualityAttr(j))
	return nil
}

// OnJobDLQ implements hook.JobDLQ.
func (m *MetricsExtension) OnJobDLQ(ctx context.Context, j *job.Job) error {
	m.dlq.Add(ctx, 1, qualityAttr(j))
	return nil
}

func (m *MetricsExtension) recordDuration(ctx context.Context, j *job.Job, outcome string) {
	if j.CompletedAt == nil {
		return
	}
	m.duration.Record(ctx, j.CompletedAt.Sub(j.CreatedAt).Seconds(), metric.WithAttributes(
		attribute.String("quality", string(j.Params.Quality)),
		attribute.String("outcome", outcome),
	))
}
