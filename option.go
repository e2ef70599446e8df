package postbox

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/event/v3/transport"
	"github.com/rbaliyan/postbox/store"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxSubjectLength   = 255     // runes
	MaxSubjectLengthCeiling   = 255     // widest subject column of the stores
	DefaultMaxContentSize     = 1 << 20 // bytes
	DefaultMaxRecipientCount  = 100     // per message
	DefaultMaxConcurrentSends = 10      // per service
	DefaultShutdownTimeout    = 30 * time.Second
	MinShutdownTimeout        = time.Second
	DefaultServiceName        = "postbox"
)

// Option configures a postbox service.
type Option func(*options)

type options struct {
	store   store.Store
	logger  *slog.Logger
	now     func() time.Time
	plugins []Plugin

	limits MessageLimits
	sends  sendSettings
	tel    telemetrySettings
	events eventSettings
}

// sendSettings bounds the send path and how long Close drains it.
type sendSettings struct {
	concurrency int
	drain       time.Duration
}

type telemetrySettings struct {
	tracing bool
	metrics bool
	name    string
	tracers trace.TracerProvider
	meters  metric.MeterProvider
}

func (t telemetrySettings) enabled() bool { return t.tracing || t.metrics }

type eventSettings struct {
	fatal     bool
	transport transport.Transport
	redis     redis.UniversalClient
	onFailure EventPublishFailureFunc
}

// EventPublishFailureFunc receives event publish failures that were not
// returned to the caller. name is the event name, such as "MessageSent".
type EventPublishFailureFunc func(name string, err error)

func newOptions(opts ...Option) *options {
	o := &options{
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		limits: DefaultLimits(),
		sends: sendSettings{
			concurrency: DefaultMaxConcurrentSends,
			drain:       DefaultShutdownTimeout,
		},
		tel: telemetrySettings{name: DefaultServiceName},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.events.onFailure == nil {
		logger := o.logger
		o.events.onFailure = func(name string, err error) {
			logger.Error("event not published", "event", name, "error", err)
		}
	}
	return o
}

func (o *options) getLimits() MessageLimits { return o.limits }

// reportEventFailure hands err to the failure callback. A panicking
// callback is logged and swallowed.
func (o *options) reportEventFailure(name string, err error) {
	if o.events.onFailure == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("event failure handler panicked", "event", name, "error", err, "panic", r)
		}
	}()
	o.events.onFailure(name, err)
}

// WithStore sets the storage backend. Required.
func WithStore(s store.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the source of sent_at and read_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPlugin adds p to the service. May be repeated.
func WithPlugin(p Plugin) Option {
	return WithPlugins(p)
}

// WithPlugins adds plugins in order, skipping nils.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *options) {
		for _, p := range plugins {
			if p != nil {
				o.plugins = append(o.plugins, p)
			}
		}
	}
}

// WithLimits replaces all message limits. Non-positive fields keep their
// current value.
func WithLimits(l MessageLimits) Option {
	return func(o *options) {
		o.limits = mergeLimits(o.limits, l)
	}
}

func mergeLimits(cur, next MessageLimits) MessageLimits {
	if next.MaxSubjectLength > 0 {
		cur.MaxSubjectLength = min(next.MaxSubjectLength, MaxSubjectLengthCeiling)
	}
	if next.MaxContentSize > 0 {
		cur.MaxContentSize = next.MaxContentSize
	}
	if next.MaxRecipientCount > 0 {
		cur.MaxRecipientCount = next.MaxRecipientCount
	}
	return cur
}

// WithMaxSubjectLength caps the subject, counted in runes. Values above
// MaxSubjectLengthCeiling are clamped to it.
func WithMaxSubjectLength(n int) Option {
	return WithLimits(MessageLimits{MaxSubjectLength: n})
}

// WithMaxContentSize caps the content, counted in bytes.
func WithMaxContentSize(n int) Option {
	return WithLimits(MessageLimits{MaxContentSize: n})
}

func WithMaxRecipients(n int) Option {
	return WithLimits(MessageLimits{MaxRecipientCount: n})
}

// WithMaxConcurrentSends bounds how many SendMessage calls run at once.
func WithMaxConcurrentSends(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sends.concurrency = n
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for in-flight sends.
// Values under MinShutdownTimeout are ignored.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= MinShutdownTimeout {
			o.sends.drain = d
		}
	}
}

// WithTracing toggles OpenTelemetry spans. Off by default.
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tel.tracing = enabled }
}

// WithMetrics toggles OpenTelemetry instruments. Off by default.
func WithMetrics(enabled bool) Option {
	return func(o *options) { o.tel.metrics = enabled }
}

// WithOTel toggles tracing and metrics together.
func WithOTel(enabled bool) Option {
	return func(o *options) {
		o.tel.tracing = enabled
		o.tel.metrics = enabled
	}
}

// WithServiceName names the service in spans and in the event bus.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.tel.name = name
		}
	}
}

// WithTracerProvider overrides otel.GetTracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tel.tracers = tp
		}
	}
}

// WithMeterProvider overrides otel.GetMeterProvider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.tel.meters = mp
		}
	}
}

// WithEventErrorsFatal makes a failed publish surface as *EventPublishError.
// The write it describes is already committed when that happens. By default
// failures go to the failure handler and the call succeeds.
func WithEventErrorsFatal(fatal bool) Option {
	return func(o *options) { o.events.fatal = fatal }
}

// WithEventTransport carries UserCreated, MessageSent and MessageRead.
// Without one, and without WithRedisClient, events are dropped.
//
//	tr := channel.New()
//	svc, _ := postbox.NewService(postbox.WithStore(s), postbox.WithEventTransport(tr))
func WithEventTransport(t transport.Transport) Option {
	return func(o *options) {
		if t != nil {
			o.events.transport = t
		}
	}
}

// WithRedisClient publishes events through Redis Streams on client.
// WithEventTransport wins when both are set.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(o *options) {
		if client != nil {
			o.events.redis = client
		}
	}
}

// WithEventPublishFailureHandler replaces the default, which logs.
func WithEventPublishFailureHandler(fn EventPublishFailureFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.events.onFailure = fn
		}
	}
}
