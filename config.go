package runner

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Cluster defaults, matching the historical runner behavior.
const (
	DefaultClusterName       = "elasticsearch-cluster-runner"
	DefaultNumOfNode         = 3
	DefaultBaseTransportPort = 9300
	DefaultBaseHTTPPort      = 9200
	DefaultMaxTransportPort  = 9399
	DefaultMaxHTTPPort       = 9299
	DefaultIndexStoreType    = "default"
)

// config holds the configuration for a Runner instance.
type config struct {
	// basePath is the root directory for all node data. Empty means a
	// fresh temporary directory is created during Build.
	basePath string

	// numOfNode is the number of engine nodes to build.
	numOfNode int

	// baseTransportPort and baseHTTPPort are the port-probe starting
	// points; node i probes from base+i upward.
	baseTransportPort int
	baseHTTPPort      int

	// maxTransportPort and maxHTTPPort bound the probe range. A negative
	// maximum disables probing entirely: the candidate port is used as-is.
	maxTransportPort int
	maxHTTPPort      int

	// clusterName is shared by every node so they discover each other.
	clusterName string

	// indexStoreType is the default index.store.type setting.
	indexStoreType string

	// useLogger routes progress reporting through the structured logger
	// instead of stdout.
	useLogger bool

	// printOnFailure downgrades engine-reported failures and convergence
	// timeouts to log output instead of errors.
	printOnFailure bool

	// healthTimeout bounds every convergence wait.
	healthTimeout time.Duration

	// healthPollInterval is how often convergence waits re-check health.
	healthPollInterval time.Duration

	// factory constructs the engine nodes.
	factory NodeFactory

	// buildHook customizes per-node settings before defaults are applied.
	buildHook BuildHook

	// logger is the structured logger to use.
	logger *slog.Logger

	// meterProvider enables OpenTelemetry metrics when non-nil.
	meterProvider metric.MeterProvider

	// recorder is derived from meterProvider at construction.
	recorder metricsRecorder
}

// defaultConfig returns the default configuration.
func defaultConfig() *config {
	return &config{
		numOfNode:          DefaultNumOfNode,
		baseTransportPort:  DefaultBaseTransportPort,
		baseHTTPPort:       DefaultBaseHTTPPort,
		maxTransportPort:   DefaultMaxTransportPort,
		maxHTTPPort:        DefaultMaxHTTPPort,
		clusterName:        DefaultClusterName,
		indexStoreType:     DefaultIndexStoreType,
		healthTimeout:      30 * time.Second,
		healthPollInterval: 100 * time.Millisecond,
		logger:             slog.Default(),
	}
}

// Option is a function type for configuring a Runner instance.
type Option func(*config)

// WithBasePath sets the root directory for node data, logs, and config.
// When unset, Build creates a fresh temporary directory.
func WithBasePath(path string) Option {
	return func(c *config) {
		c.basePath = path
	}
}

// WithNumOfNode sets how many nodes Build starts.
func WithNumOfNode(n int) Option {
	return func(c *config) {
		c.numOfNode = n
	}
}

// WithBaseTransportPort sets the starting point for transport port probing.
func WithBaseTransportPort(port int) Option {
	return func(c *config) {
		c.baseTransportPort = port
	}
}

// WithBaseHTTPPort sets the starting point for HTTP port probing.
func WithBaseHTTPPort(port int) Option {
	return func(c *config) {
		c.baseHTTPPort = port
	}
}

// WithMaxTransportPort bounds transport port probing. A negative value
// disables probing: each node uses base+index unchecked.
func WithMaxTransportPort(port int) Option {
	return func(c *config) {
		c.maxTransportPort = port
	}
}

// WithMaxHTTPPort bounds HTTP port probing. A negative value disables
// probing: each node uses base+index unchecked.
func WithMaxHTTPPort(port int) Option {
	return func(c *config) {
		c.maxHTTPPort = port
	}
}

// WithClusterName sets the cluster name shared by all nodes.
func WithClusterName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.clusterName = name
		}
	}
}

// WithIndexStoreType sets the default index.store.type setting.
func WithIndexStoreType(storeType string) Option {
	return func(c *config) {
		if storeType != "" {
			c.indexStoreType = storeType
		}
	}
}

// WithUseLogger routes progress reporting through the structured logger
// instead of stdout.
func WithUseLogger(enabled bool) Option {
	return func(c *config) {
		c.useLogger = enabled
	}
}

// WithPrintOnFailure downgrades engine-reported failures and convergence
// timeouts to log output; operations then return best-effort data with a
// nil error.
func WithPrintOnFailure(enabled bool) Option {
	return func(c *config) {
		c.printOnFailure = enabled
	}
}

// WithHealthTimeout bounds every convergence wait. Values below one second
// are clamped to one second.
func WithHealthTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout < time.Second {
			timeout = time.Second
		}
		c.healthTimeout = timeout
	}
}

// WithHealthPollInterval sets how often convergence waits re-check cluster
// health. Values below 10ms are clamped to prevent excessive polling.
func WithHealthPollInterval(interval time.Duration) Option {
	return func(c *config) {
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		c.healthPollInterval = interval
	}
}

// WithBuildHook sets the per-node settings customization hook. Settings
// written by the hook are never overwritten by runner defaults.
func WithBuildHook(hook BuildHook) Option {
	return func(c *config) {
		c.buildHook = hook
	}
}

// WithLogger sets the structured logger to use.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMeterProvider enables OpenTelemetry metrics using the given provider.
// When unset, metrics are a no-op.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}
