//go:build nometrics

package runner

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// newOtelMetrics degrades to the no-op recorder when the nometrics build
// tag is set.
func newOtelMetrics(metric.MeterProvider, *slog.Logger) metricsRecorder {
	return &noopMetrics{}
}
