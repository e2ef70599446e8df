package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	tracingEnabled bool
	metricsEnabled bool
	backend        string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures New.
type Option func(*options)

// WithTracing toggles one span per store call. On unless disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics toggles the postbox.store.* instruments. On unless disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithBackend sets the db.system attribute recorded on spans and metrics,
// e.g. "postgresql" or "mongodb".
func WithBackend(name string) Option {
	return func(o *options) {
		if name != "" {
			o.backend = name
		}
	}
}

// WithTracerProvider replaces the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider replaces the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}
