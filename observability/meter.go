package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/pipegraph/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns defaults for a local collector.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "local",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the pipeline metric instruments.
type Metrics struct {
	stepTotal        metric.Int64Counter
	stepDuration     metric.Float64Histogram
	instanceTotal    metric.Int64Counter
	instanceActive   metric.Int64UpDownCounter
	instanceDuration metric.Float64Histogram
	executorErrors   metric.Int64Counter
	runTotal         metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	stepTotal, err := meter.Int64Counter("pipeline.step.total",
		metric.WithDescription("Steps processed by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.step.total counter: %w", err)
	}

	stepDuration, err := meter.Float64Histogram("pipeline.step.duration",
		metric.WithDescription("Duration of executed steps in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.step.duration histogram: %w", err)
	}

	instanceTotal, err := meter.Int64Counter("pipeline.instance.total",
		metric.WithDescription("Job instances reaching a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.instance.total counter: %w", err)
	}

	instanceActive, err := meter.Int64UpDownCounter("pipeline.instance.active",
		metric.WithDescription("Job instances currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.instance.active gauge: %w", err)
	}

	instanceDuration, err := meter.Float64Histogram("pipeline.instance.duration",
		metric.WithDescription("Duration of job instances in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.instance.duration histogram: %w", err)
	}

	executorErrors, err := meter.Int64Counter("pipeline.executor.errors",
		metric.WithDescription("Executor errors by tag"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.executor.errors counter: %w", err)
	}

	runTotal, err := meter.Int64Counter("pipeline.run.total",
		metric.WithDescription("Pipeline runs by final status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.run.total counter: %w", err)
	}

	return &Metrics{
		stepTotal:        stepTotal,
		stepDuration:     stepDuration,
		instanceTotal:    instanceTotal,
		instanceActive:   instanceActive,
		instanceDuration: instanceDuration,
		executorErrors:   executorErrors,
		runTotal:         runTotal,
	}, nil
}

// RecordStep records one executed step.
func (m *Metrics) RecordStep(ctx context.Context, job, step, outcome string, duration time.Duration) {
	m.stepTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
	m.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("step", step),
	))
}

// RecordInstanceStart increments the running instance count.
func (m *Metrics) RecordInstanceStart(ctx context.Context, job string) {
	m.instanceActive.Add(ctx, 1, metric.WithAttributes(attribute.String("job", job)))
}

// RecordInstanceEnd records a terminal instance. Pass ran=false for instances
// that were skipped without starting so the active gauge stays balanced.
func (m *Metrics) RecordInstanceEnd(ctx context.Context, job, status string, ran bool, duration time.Duration) {
	if ran {
		m.instanceActive.Add(ctx, -1, metric.WithAttributes(attribute.String("job", job)))
		m.instanceDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("job", job)))
	}
	m.instanceTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	))
}

// RecordExecutorError records an executor error by diagnostic tag.
func (m *Metrics) RecordExecutorError(ctx context.Context, executor, tag string) {
	m.executorErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("executor", executor),
		attribute.String("tag", tag),
	))
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(ctx context.Context, pipeline, status string) {
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	))
}
