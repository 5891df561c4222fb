package runner

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// metricsRecorder is the internal interface for recording harness metrics.
// Implementations must be thread-safe.
type metricsRecorder interface {
	// Counter metrics
	recordNodeStarted(name string)
	recordNodeClosed(name string)
	recordPortAllocated(probes int)
	recordOperation(op string, success bool)
	recordConvergenceTimeout(op string)

	// Histogram metrics
	recordBuildDuration(duration time.Duration)
	recordHealthWait(op string, duration time.Duration, timedOut bool)
}

// newMetricsRecorder creates a metrics recorder based on the provided
// MeterProvider. A nil provider yields a no-op recorder with zero
// overhead.
func newMetricsRecorder(provider metric.MeterProvider, logger *slog.Logger) metricsRecorder {
	if provider == nil {
		return &noopMetrics{}
	}
	return newOtelMetrics(provider, logger)
}

// noopMetrics is a zero-overhead no-op implementation of metricsRecorder.
type noopMetrics struct{}

func (n *noopMetrics) recordNodeStarted(string)                     {}
func (n *noopMetrics) recordNodeClosed(string)                      {}
func (n *noopMetrics) recordPortAllocated(int)                      {}
func (n *noopMetrics) recordOperation(string, bool)                 {}
func (n *noopMetrics) recordConvergenceTimeout(string)              {}
func (n *noopMetrics) recordBuildDuration(time.Duration)            {}
func (n *noopMetrics) recordHealthWait(string, time.Duration, bool) {}
