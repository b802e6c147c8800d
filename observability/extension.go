package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/accord/compliance"
	"github.com/xraph/accord/ext"
	"github.com/xraph/accord/ledger"
	"github.com/xraph/accord/settlement"
	"github.com/xraph/accord/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted     = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted   = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed      = (*MetricsExtension)(nil)
	_ ext.WorkflowCancelled   = (*MetricsExtension)(nil)
	_ ext.TaskStarted         = (*MetricsExtension)(nil)
	_ ext.TaskCompleted       = (*MetricsExtension)(nil)
	_ ext.TaskFailed          = (*MetricsExtension)(nil)
	_ ext.TaskRetrying        = (*MetricsExtension)(nil)
	_ ext.LedgerAppended      = (*MetricsExtension)(nil)
	_ ext.BlockSealed         = (*MetricsExtension)(nil)
	_ ext.CheckpointEvaluated = (*MetricsExtension)(nil)
	_ ext.SettlementTriggered = (*MetricsExtension)(nil)
)

// MetricsExtension records orchestrator lifecycle metrics through
// OpenTelemetry. Register it with the extension registry to track
// workflow throughput, task outcomes and durations, retry pressure,
// ledger growth, and checkpoint verdicts.
type MetricsExtension struct {
	workflowStarted   metric.Int64Counter
	workflowCompleted metric.Int64Counter
	workflowFailed    metric.Int64Counter
	workflowCancelled metric.Int64Counter
	workflowDuration  metric.Float64Histogram

	taskStarted  metric.Int64Counter
	taskOutcomes metric.Int64Counter
	taskRetried  metric.Int64Counter
	taskDuration metric.Float64Histogram

	eventsAppended metric.Int64Counter
	blocksSealed   metric.Int64Counter
	checkpoints    metric.Int64Counter
	settlements    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithProvider(otel.GetMeterProvider())
}

// NewMetricsExtensionWithProvider creates a MetricsExtension on the
// given provider. Pass an sdkmetric.MeterProvider backed by a manual
// reader in tests.
func NewMetricsExtensionWithProvider(provider metric.MeterProvider) (*MetricsExtension, error) {
	meter := provider.Meter("github.com/xraph/accord/observability")

	m := &MetricsExtension{}
	var err error

	if m.workflowStarted, err = meter.Int64Counter("accord.workflow.started",
		metric.WithDescription("Workflow executions started")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.workflowCompleted, err = meter.Int64Counter("accord.workflow.completed",
		metric.WithDescription("Workflow executions completed successfully")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.workflowFailed, err = meter.Int64Counter("accord.workflow.failed",
		metric.WithDescription("Workflow executions failed terminally")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.workflowCancelled, err = meter.Int64Counter("accord.workflow.cancelled",
		metric.WithDescription("Workflow executions cancelled")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.workflowDuration, err = meter.Float64Histogram("accord.workflow.duration",
		metric.WithDescription("End-to-end workflow duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.taskStarted, err = meter.Int64Counter("accord.task.started",
		metric.WithDescription("Task dispatch attempts")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.taskOutcomes, err = meter.Int64Counter("accord.task.outcomes",
		metric.WithDescription("Terminal task outcomes by status")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.taskRetried, err = meter.Int64Counter("accord.task.retried",
		metric.WithDescription("Task retry schedules")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.taskDuration, err = meter.Float64Histogram("accord.task.duration",
		metric.WithDescription("Successful task duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.eventsAppended, err = meter.Int64Counter("accord.ledger.events",
		metric.WithDescription("Events appended to the trust ledger")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.blocksSealed, err = meter.Int64Counter("accord.ledger.blocks",
		metric.WithDescription("Verification blocks sealed")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.checkpoints, err = meter.Int64Counter("accord.checkpoint.evaluations",
		metric.WithDescription("Compliance checkpoint evaluations by verdict")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	if m.settlements, err = meter.Int64Counter("accord.settlement.signals",
		metric.WithDescription("Settlement signals created for completed workflows")); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, _ *workflow.Execution) error {
	m.workflowStarted.Add(ctx, 1)
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, _ *workflow.Execution, elapsed time.Duration) error {
	m.workflowCompleted.Add(ctx, 1)
	m.workflowDuration.Record(ctx, elapsed.Seconds())
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, _ *workflow.Execution, _ error) error {
	m.workflowFailed.Add(ctx, 1)
	return nil
}

// OnWorkflowCancelled implements ext.WorkflowCancelled.
func (m *MetricsExtension) OnWorkflowCancelled(ctx context.Context, _ *workflow.Execution) error {
	m.workflowCancelled.Add(ctx, 1)
	return nil
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskStarted implements ext.TaskStarted.
func (m *MetricsExtension) OnTaskStarted(ctx context.Context, t *workflow.Task) error {
	m.taskStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task.type", string(t.Type)),
	))
	return nil
}

// OnTaskCompleted implements ext.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(ctx context.Context, t *workflow.Task, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("task.type", string(t.Type)))
	m.taskOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task.type", string(t.Type)),
		attribute.String("outcome", "completed"),
	))
	m.taskDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnTaskFailed implements ext.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, t *workflow.Task, _ error) error {
	m.taskOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task.type", string(t.Type)),
		attribute.String("outcome", "failed"),
	))
	return nil
}

// OnTaskRetrying implements ext.TaskRetrying.
func (m *MetricsExtension) OnTaskRetrying(ctx context.Context, t *workflow.Task, _ int, _ time.Time) error {
	m.taskRetried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task.type", string(t.Type)),
	))
	return nil
}

// ── Ledger and compliance hooks ─────────────────────

// OnLedgerAppended implements ext.LedgerAppended.
func (m *MetricsExtension) OnLedgerAppended(ctx context.Context, e *ledger.Event) error {
	m.eventsAppended.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", string(e.Type)),
	))
	return nil
}

// OnBlockSealed implements ext.BlockSealed.
func (m *MetricsExtension) OnBlockSealed(ctx context.Context, _ *ledger.Block) error {
	m.blocksSealed.Add(ctx, 1)
	return nil
}

// OnCheckpointEvaluated implements ext.CheckpointEvaluated.
func (m *MetricsExtension) OnCheckpointEvaluated(ctx context.Context, c *compliance.Checkpoint) error {
	m.checkpoints.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", string(c.Status)),
	))
	return nil
}

// OnSettlementTriggered implements ext.SettlementTriggered.
func (m *MetricsExtension) OnSettlementTriggered(ctx context.Context, _ *settlement.Signal) error {
	m.settlements.Add(ctx, 1)
	return nil
}
