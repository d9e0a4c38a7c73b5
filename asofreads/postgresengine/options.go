package postgresengine

import (
	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

// Option defines a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFunctionName sets the name of the server-side companion function that
// performs the snapshot-scoped execution. Defaults to "asof_execute".
func WithFunctionName(name string) Option {
	return func(gw *Gateway) error {
		if name == "" {
			return ErrEmptyFunctionName
		}

		gw.functionName = name

		return nil
	}
}

// WithLogger sets the logger for the Gateway.
//
// Debug level: executed calls with timing (development use)
// Info level: completed queries with row counts (production-safe)
// Warn level: non-critical issues like rows cleanup failures
// Error level: rejections and execution failures.
func WithLogger(logger asofreads.Logger) Option {
	return func(gw *Gateway) error {
		gw.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger with automatic trace
// correlation. When configured it takes precedence over the plain logger for
// info and error messages.
func WithContextualLogger(logger asofreads.ContextualLogger) Option {
	return func(gw *Gateway) error {
		gw.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Gateway. It receives call
// durations and error counters.
func WithMetrics(collector asofreads.MetricsCollector) Option {
	return func(gw *Gateway) error {
		gw.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Gateway. Each Execute call
// is wrapped in one span.
func WithTracing(collector asofreads.TracingCollector) Option {
	return func(gw *Gateway) error {
		gw.tracingCollector = collector
		return nil
	}
}
