package dag

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/observability"
)

// WithTracing wraps an executor with OpenTelemetry span creation.
// Each step execution creates a span named "pipeline.step".
func WithTracing(exec StepExecutor) StepExecutor {
	return &tracingExecutor{inner: exec}
}

type tracingExecutor struct {
	inner StepExecutor
}

func (e *tracingExecutor) Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome {
	ctx, span := observability.StartSpan(ctx, observability.SpanStep, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	if tid := span.SpanContext().TraceID(); tid.IsValid() {
		ctx = logger.ContextWithTraceID(ctx, tid.String())
	}

	observability.SetSpanAttribute(ctx, observability.AttrRunID, sc.RunID)
	observability.SetSpanAttribute(ctx, observability.AttrJob, sc.JobID)
	observability.SetSpanAttribute(ctx, observability.AttrInstance, sc.InstanceID)
	observability.SetSpanAttribute(ctx, observability.AttrStep, step.Name)

	out := e.inner.Execute(ctx, step, sc)

	observability.SetSpanAttribute(ctx, observability.AttrOutcome, string(out.Kind))
	observability.SetSpanAttribute(ctx, observability.AttrExitCode, out.ExitCode)
	if out.Err != nil {
		observability.SetSpanError(ctx, out.Err)
	}
	return out
}

// WithMetrics wraps an executor with metric recording: step count and
// duration by outcome, and executor errors by tag.
func WithMetrics(exec StepExecutor, metrics *observability.Metrics) StepExecutor {
	return &metricsExecutor{inner: exec, metrics: metrics}
}

type metricsExecutor struct {
	inner   StepExecutor
	metrics *observability.Metrics
}

func (e *metricsExecutor) Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome {
	start := time.Now()
	out := e.inner.Execute(ctx, step, sc)

	e.metrics.RecordStep(ctx, sc.JobID, step.Name, string(out.Kind), time.Since(start))
	if out.Kind == OutcomeExecutorError {
		e.metrics.RecordExecutorError(ctx, step.Executor(), out.Tag)
	}
	return out
}

// WithLogging wraps an executor with execution logging.
func WithLogging(exec StepExecutor, log *logger.Logger) StepExecutor {
	return &loggingExecutor{inner: exec, log: log}
}

type loggingExecutor struct {
	inner StepExecutor
	log   *logger.Logger
}

func (e *loggingExecutor) Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome {
	start := time.Now()
	out := e.inner.Execute(ctx, step, sc)
	log := e.log.WithContext(ctx)

	fields := map[string]interface{}{
		logger.FieldInstance: sc.InstanceID,
		logger.FieldStep:     step.Name,
		logger.FieldExecutor: step.Executor(),
		logger.FieldOutcome:  string(out.Kind),
		logger.FieldDuration: time.Since(start).Milliseconds(),
	}

	switch out.Kind {
	case OutcomeSuccess:
		log.Debug("step executed", fields)
	case OutcomeFailure:
		fields[logger.FieldExitCode] = out.ExitCode
		log.Warn("step failed", fields)
	default:
		if out.Err != nil {
			fields[logger.FieldError] = out.Err.Error()
		}
		log.Error("executor error", fields)
	}
	return out
}

// MetricsObserver records instance and run metrics from scheduler events.
type MetricsObserver struct {
	Metrics *observability.Metrics
}

var _ Observer = (*MetricsObserver)(nil)

// InstanceChanged records starts and terminal states.
func (o *MetricsObserver) InstanceChanged(ctx context.Context, _ string, inst JobInstance) {
	switch {
	case inst.Status == StatusRunning:
		o.Metrics.RecordInstanceStart(ctx, inst.JobID)
	case inst.Status.Terminal():
		o.Metrics.RecordInstanceEnd(ctx, inst.JobID, string(inst.Status), !inst.StartedAt.IsZero(), inst.Duration())
	}
}

// RunFinished records the pipeline's final status.
func (o *MetricsObserver) RunFinished(ctx context.Context, result *RunResult) {
	o.Metrics.RecordRun(ctx, result.Pipeline, string(result.Status))
}

// LoggingObserver logs instance transitions.
type LoggingObserver struct {
	Log *logger.Logger
}

var _ Observer = (*LoggingObserver)(nil)

// InstanceChanged logs the new status of inst.
func (o *LoggingObserver) InstanceChanged(_ context.Context, runID string, inst JobInstance) {
	fields := logger.Fields(
		logger.FieldRunID, runID,
		logger.FieldJob, inst.JobID,
		logger.FieldInstance, inst.ID,
		logger.FieldStatus, string(inst.Status),
	)
	switch inst.Status {
	case StatusRunning:
		o.Log.Info("instance started", fields)
	case StatusSucceeded:
		fields[logger.FieldDuration] = inst.Duration().Milliseconds()
		o.Log.Info("instance succeeded", fields)
	case StatusFailed:
		fields[logger.FieldDuration] = inst.Duration().Milliseconds()
		if inst.Err != nil {
			fields[logger.FieldError] = inst.Err.Error()
		}
		o.Log.Error("instance failed", fields)
	case StatusSkipped:
		fields[logger.FieldReason] = inst.SkipReason
		o.Log.Warn("instance skipped", fields)
	}
}

// RunFinished logs the pipeline result.
func (o *LoggingObserver) RunFinished(_ context.Context, result *RunResult) {
	o.Log.Info("pipeline finished", logger.Fields(
		logger.FieldRunID, result.ID,
		logger.FieldPipeline, result.Pipeline,
		logger.FieldStatus, string(result.Status),
		logger.FieldDuration, result.Duration().Milliseconds(),
	))
}
