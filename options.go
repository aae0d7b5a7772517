package treetopk

import (
	"log/slog"

	"github.com/hupe1980/treetopk/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	controller       *resource.Controller
}

// Option configures Run and RunLocal.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &treetopk.BasicMetricsCollector{}
//	res, _ := treetopk.RunLocal(ctx, cfg, 11, store, treetopk.WithMetricsCollector(metrics))
//	stats := metrics.GetFetchStats()
//	fmt.Printf("Fetches: %d, missing: %d\n", stats.Count, stats.Missing)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := treetopk.NewJSONLogger(slog.LevelInfo)
//	res, _ := treetopk.Run(ctx, cfg, store, tr, treetopk.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
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

// WithResourceController shares a resource controller between runs instead
// of creating one from Config. RunLocal uses a single controller for all
// selectors of the process.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
