//go:build !nometrics

package runner

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics is the OpenTelemetry implementation of metricsRecorder.
type otelMetrics struct {
	logger *slog.Logger

	// Counters
	nodesStarted        metric.Int64Counter
	nodesClosed         metric.Int64Counter
	portsAllocated      metric.Int64Counter
	operations          metric.Int64Counter
	convergenceTimeouts metric.Int64Counter

	// Histograms
	buildDuration metric.Float64Histogram
	healthWait    metric.Float64Histogram
}

// newOtelMetrics creates a new OpenTelemetry metrics recorder.
func newOtelMetrics(provider metric.MeterProvider, logger *slog.Logger) *otelMetrics {
	meter := provider.Meter(
		"github.com/ptemplier/elasticsearch-cluster-runner",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	m := &otelMetrics{logger: logger}

	var err error

	m.nodesStarted, err = meter.Int64Counter(
		"runner.nodes.started",
		metric.WithDescription("Total engine nodes started"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		logger.Warn("runner: failed to create nodesStarted counter", "error", err)
	}

	m.nodesClosed, err = meter.Int64Counter(
		"runner.nodes.closed",
		metric.WithDescription("Total engine nodes closed"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		logger.Warn("runner: failed to create nodesClosed counter", "error", err)
	}

	m.portsAllocated, err = meter.Int64Counter(
		"runner.ports.allocated",
		metric.WithDescription("Total ports allocated by probing"),
		metric.WithUnit("{port}"),
	)
	if err != nil {
		logger.Warn("runner: failed to create portsAllocated counter", "error", err)
	}

	m.operations, err = meter.Int64Counter(
		"runner.operations",
		metric.WithDescription("Total facade operations issued"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		logger.Warn("runner: failed to create operations counter", "error", err)
	}

	m.convergenceTimeouts, err = meter.Int64Counter(
		"runner.convergence.timeouts",
		metric.WithDescription("Total health waits that hit their deadline"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		logger.Warn("runner: failed to create convergenceTimeouts counter", "error", err)
	}

	m.buildDuration, err = meter.Float64Histogram(
		"runner.build.duration",
		metric.WithDescription("Time to build the full cluster"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 2000, 5000, 10000, 30000, 60000),
	)
	if err != nil {
		logger.Warn("runner: failed to create buildDuration histogram", "error", err)
	}

	m.healthWait, err = meter.Float64Histogram(
		"runner.health.wait",
		metric.WithDescription("Time spent waiting for cluster convergence"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 250, 500, 1000, 5000, 10000, 30000),
	)
	if err != nil {
		logger.Warn("runner: failed to create healthWait histogram", "error", err)
	}

	return m
}

func (m *otelMetrics) recordNodeStarted(name string) {
	if m.nodesStarted != nil {
		m.nodesStarted.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("node_name", name)))
	}
}

func (m *otelMetrics) recordNodeClosed(name string) {
	if m.nodesClosed != nil {
		m.nodesClosed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("node_name", name)))
	}
}

func (m *otelMetrics) recordPortAllocated(probes int) {
	if m.portsAllocated != nil {
		m.portsAllocated.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Int("probes", probes)))
	}
}

func (m *otelMetrics) recordOperation(op string, success bool) {
	if m.operations != nil {
		m.operations.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("operation", op),
				attribute.Bool("success", success),
			))
	}
}

func (m *otelMetrics) recordConvergenceTimeout(op string) {
	if m.convergenceTimeouts != nil {
		m.convergenceTimeouts.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("operation", op)))
	}
}

func (m *otelMetrics) recordBuildDuration(duration time.Duration) {
	if m.buildDuration != nil {
		m.buildDuration.Record(context.Background(), float64(duration.Milliseconds()))
	}
}

func (m *otelMetrics) recordHealthWait(op string, duration time.Duration, timedOut bool) {
	if m.healthWait != nil {
		m.healthWait.Record(context.Background(), float64(duration.Milliseconds()),
			metric.WithAttributes(
				attribute.String("operation", op),
				attribute.Bool("timed_out", timedOut),
			))
	}
}
