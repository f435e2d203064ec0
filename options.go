package envgo

import (
	"log/slog"

	"github.com/hupe1980/envgo/resource"
	"github.com/hupe1980/envgo/snapshot"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	compression      snapshot.Compression
	controller       *resource.Controller
}

// Option configures EnvelopeStore constructor behavior.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &envgo.BasicMetricsCollector{}
//	es := envgo.New(envgo.WithMetricsCollector(metrics))
//	// ... use es ...
//	stats := metrics.GetStats()
//	fmt.Printf("Puts: %d, Avg latency: %dns\n", stats.PutCount, stats.PutAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := envgo.NewJSONLogger(slog.LevelInfo)
//	es := envgo.New(envgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithCompression selects the snapshot body compression codec.
// Default: none.
func WithCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithResourceController applies global resource limits: memory held by
// stored encodings, concurrent snapshot jobs, and snapshot IO throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      snapshot.CompressionNone,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	// Nil means disabled; the noop implementations keep call sites
	// guard-free.
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
