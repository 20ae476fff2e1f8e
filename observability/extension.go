package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/probelab/pilot/ext"
	"github.com/probelab/pilot/healer"
	"github.com/probelab/pilot/obstacle"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/step"
)

// meterName is the instrumentation scope name for pilot observability.
const meterName = "github.com/probelab/pilot/observability"

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.RunStarted       = (*MetricsExtension)(nil)
	_ ext.RunFinished      = (*MetricsExtension)(nil)
	_ ext.StepCompleted    = (*MetricsExtension)(nil)
	_ ext.StepFailed       = (*MetricsExtension)(nil)
	_ ext.StepRetrying     = (*MetricsExtension)(nil)
	_ ext.ObstacleDetected = (*MetricsExtension)(nil)
	_ ext.RepairProposed   = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics through the
// OTel metric API. Register it as a Pilot extension to automatically
// track run throughput, terminal status mix, step outcomes, repair
// activity, and obstacle hits. Without a configured MeterProvider the
// instruments are noops and the extension costs nothing.
type MetricsExtension struct {
	runsStarted  metric.Int64Counter
	runsFinished metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepsOK      metric.Int64Counter
	stepsFailed  metric.Int64Counter
	stepsRetried metric.Int64Counter
	obstacles    metric.Int64Counter
	repairs      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.runsStarted, _ = meter.Int64Counter("pilot.run.started",
		metric.WithDescription("Total runs started"))
	m.runsFinished, _ = meter.Int64Counter("pilot.run.finished",
		metric.WithDescription("Total runs reaching a terminal state"))
	m.runDuration, _ = meter.Float64Histogram("pilot.run.duration",
		metric.WithDescription("Wall-clock run duration in seconds"),
		metric.WithUnit("s"))
	m.stepsOK, _ = meter.Int64Counter("pilot.step.completed",
		metric.WithDescription("Total steps completed successfully"))
	m.stepsFailed, _ = meter.Int64Counter("pilot.step.failed",
		metric.WithDescription("Total steps failed terminally"))
	m.stepsRetried, _ = meter.Int64Counter("pilot.step.retried",
		metric.WithDescription("Total repair attempts scheduled"))
	m.obstacles, _ = meter.Int64Counter("pilot.obstacle.detected",
		metric.WithDescription("Total actionable obstacles detected"))
	m.repairs, _ = meter.Int64Counter("pilot.repair.proposed",
		metric.WithDescription("Total non-empty repairs proposed"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, r *run.TestRun) error {
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant_id", r.TenantID),
	))
	return nil
}

// OnRunFinished implements ext.RunFinished.
func (m *MetricsExtension) OnRunFinished(ctx context.Context, r *run.TestRun, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("tenant_id", r.TenantID),
		attribute.String("status", string(r.Status)),
	)
	m.runsFinished.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnStepCompleted implements ext.StepCompleted.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, r *run.TestRun, x *step.ExecutedStep) error {
	m.stepsOK.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(x.Step.Action)),
		attribute.String("origin", string(x.Step.Origin)),
	))
	return nil
}

// OnStepFailed implements ext.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, r *run.TestRun, x *step.ExecutedStep, _ error) error {
	m.stepsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(x.Step.Action)),
		attribute.String("origin", string(x.Step.Origin)),
	))
	return nil
}

// OnStepRetrying implements ext.StepRetrying.
func (m *MetricsExtension) OnStepRetrying(ctx context.Context, r *run.TestRun, s *step.ActionStep, attempt int) error {
	m.stepsRetried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(s.Action)),
		attribute.Int("attempt", attempt),
	))
	return nil
}

// OnObstacleDetected implements ext.ObstacleDetected.
func (m *MetricsExtension) OnObstacleDetected(ctx context.Context, r *run.TestRun, d *obstacle.Detection) error {
	m.obstacles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(d.Type)),
	))
	return nil
}

// OnRepairProposed implements ext.RepairProposed.
func (m *MetricsExtension) OnRepairProposed(ctx context.Context, r *run.TestRun, rep *healer.Repair) error {
	m.repairs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("root_cause", string(rep.RootCause)),
	))
	return nil
}
