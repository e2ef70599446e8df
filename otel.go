package postbox

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/postbox"

// otelInstrumentation is the service's tracer plus one instrument set per
// operation family. The zero parts are no-ops.
type otelInstrumentation struct {
	tracer  trace.Tracer // nil when tracing is off
	service attribute.KeyValue

	metrics bool
	users   instrumentSet
	sends   instrumentSet
	reads   instrumentSet
	queries instrumentSet
}

// instrumentSet is the duration, count and error instruments of one family.
type instrumentSet struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	failed   metric.Int64Counter
}

func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{service: attribute.String("service.name", opts.tel.name)}
	if opts.tel.tracing {
		tp := opts.tel.tracers
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}
	if !opts.tel.metrics {
		return o, nil
	}

	mp := opts.tel.meters
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	families := []struct {
		set    *instrumentSet
		prefix string
		label  string
	}{
		{&o.users, "user.create", "create user"},
		{&o.sends, "send", "send"},
		{&o.reads, "mark_read", "mark read"},
		{&o.queries, "query", "query"},
	}
	for _, f := range families {
		set, err := newInstrumentSet(meter, f.prefix, f.label)
		if err != nil {
			return nil, err
		}
		*f.set = set
	}
	o.metrics = true
	return o, nil
}

func newInstrumentSet(meter metric.Meter, prefix, label string) (instrumentSet, error) {
	var (
		s   instrumentSet
		err error
	)
	name := "postbox." + prefix
	if s.duration, err = meter.Float64Histogram(name+".duration",
		metric.WithDescription(label+" latency"), metric.WithUnit("s")); err != nil {
		return s, err
	}
	if s.total, err = meter.Int64Counter(name+".count",
		metric.WithDescription(label+" calls")); err != nil {
		return s, err
	}
	if s.failed, err = meter.Int64Counter(name+".errors",
		metric.WithDescription(label+" failures")); err != nil {
		return s, err
	}
	return s, nil
}

func (s instrumentSet) record(ctx context.Context, d time.Duration, err error, attrs ...attribute.KeyValue) {
	opt := metric.WithAttributes(attrs...)
	s.duration.Record(ctx, d.Seconds(), opt)
	s.total.Add(ctx, 1, opt)
	if err != nil {
		s.failed.Add(ctx, 1, opt)
	}
}

// startSpan opens an internal span. The returned func ends it and marks it
// failed when given a non-nil error.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append(attrs, o.service)...),
	)
	return ctx, func(err error) {
		defer span.End()
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// outcome is "ok", "rejected" for domain errors, or "failed".
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if IsDomainError(err) {
		return "rejected"
	}
	return "failed"
}

func (o *otelInstrumentation) recordCreateUser(ctx context.Context, d time.Duration, err error) {
	if o.metrics {
		o.users.record(ctx, d, err, attribute.String("outcome", outcome(err)))
	}
}

func (o *otelInstrumentation) recordSend(ctx context.Context, d time.Duration, recipients int, err error) {
	if o.metrics {
		o.sends.record(ctx, d, err,
			attribute.String("outcome", outcome(err)),
			attribute.Int("recipient_count", recipients))
	}
}

func (o *otelInstrumentation) recordMarkRead(ctx context.Context, d time.Duration, err error) {
	if o.metrics {
		o.reads.record(ctx, d, err, attribute.String("outcome", outcome(err)))
	}
}

// recordQuery covers the read-only views and user listing.
func (o *otelInstrumentation) recordQuery(ctx context.Context, d time.Duration, view string, results int, err error) {
	if o.metrics {
		o.queries.record(ctx, d, err,
			attribute.String("view", view),
			attribute.Int("result_count", results))
	}
}
