// Package otel provides OpenTelemetry instrumentation for stores.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/postbox/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/postbox/store/otel"
)

// Store wraps a store.Store with spans and per-operation metrics.
type Store struct {
	backend store.Store
	opts    *options

	tracer trace.Tracer

	opLatency metric.Float64Histogram
	opCount   metric.Int64Counter
	opErrors  metric.Int64Counter
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new OTel-instrumented store wrapping the given backend.
func New(backend store.Store, opts ...Option) (*Store, error) {
	o := &options{
		tracingEnabled: true,
		metricsEnabled: true,
		backend:        "unknown",
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{
		backend: backend,
		opts:    o,
	}

	if o.tracingEnabled {
		s.tracer = o.tracerProvider.Tracer(instrumentationName)
	}

	if o.metricsEnabled {
		if err := s.initMetrics(o.meterProvider); err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
	}

	return s, nil
}

func (s *Store) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error
	s.opLatency, err = meter.Float64Histogram(
		"postbox.store.duration",
		metric.WithDescription("Duration of store operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.opCount, err = meter.Int64Counter(
		"postbox.store.count",
		metric.WithDescription("Number of store operations"),
	)
	if err != nil {
		return err
	}

	s.opErrors, err = meter.Int64Counter(
		"postbox.store.errors",
		metric.WithDescription("Number of failed store operations"),
	)
	return err
}

// instrument starts a span and returns a function that ends it and records metrics.
func (s *Store) instrument(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	attrs = append(attrs,
		attribute.String("db.system", s.opts.backend),
		attribute.String("db.operation", op),
	)

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "store."+op,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindClient),
		)
	}

	return ctx, func(err error) {
		// Expected outcomes are not failures of the store.
		failed := err != nil &&
			!errors.Is(err, store.ErrNotFound) &&
			!errors.Is(err, store.ErrAlreadyRead) &&
			!errors.Is(err, store.ErrDuplicateEntry)

		if span != nil {
			if failed {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}

		if s.opts.metricsEnabled {
			mattrs := metric.WithAttributes(
				attribute.String("db.system", s.opts.backend),
				attribute.String("db.operation", op),
			)
			s.opLatency.Record(ctx, time.Since(start).Seconds(), mattrs)
			s.opCount.Add(ctx, 1, mattrs)
			if failed {
				s.opErrors.Add(ctx, 1, mattrs)
			}
		}
	}
}

func (s *Store) Connect(ctx context.Context) (err error) {
	ctx, end := s.instrument(ctx, "connect")
	defer func() { end(err) }()
	return s.backend.Connect(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

func (s *Store) CreateUser(ctx context.Context, data store.UserData) (_ *store.User, err error) {
	ctx, end := s.instrument(ctx, "create_user")
	defer func() { end(err) }()
	return s.backend.CreateUser(ctx, data)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (_ *store.User, err error) {
	ctx, end := s.instrument(ctx, "get_user_by_email")
	defer func() { end(err) }()
	return s.backend.GetUserByEmail(ctx, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (_ *store.User, err error) {
	ctx, end := s.instrument(ctx, "get_user_by_id", attribute.String("user_id", id))
	defer func() { end(err) }()
	return s.backend.GetUserByID(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context) (_ []*store.User, err error) {
	ctx, end := s.instrument(ctx, "list_users")
	defer func() { end(err) }()
	return s.backend.ListUsers(ctx)
}

func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (_ *store.Message, err error) {
	ctx, end := s.instrument(ctx, "create_message", attribute.Int("recipient_count", len(data.Recipients)))
	defer func() { end(err) }()
	return s.backend.CreateMessage(ctx, data)
}

func (s *Store) GetMessage(ctx context.Context, id string) (_ *store.Message, err error) {
	ctx, end := s.instrument(ctx, "get_message", attribute.String("message_id", id))
	defer func() { end(err) }()
	return s.backend.GetMessage(ctx, id)
}

func (s *Store) ListSent(ctx context.Context, senderID string) (_ []*store.Message, err error) {
	ctx, end := s.instrument(ctx, "list_sent")
	defer func() { end(err) }()
	return s.backend.ListSent(ctx, senderID)
}

func (s *Store) ListInbox(ctx context.Context, recipientID string, unreadOnly bool) (_ []*store.InboxEntry, err error) {
	ctx, end := s.instrument(ctx, "list_inbox", attribute.Bool("unread_only", unreadOnly))
	defer func() { end(err) }()
	return s.backend.ListInbox(ctx, recipientID, unreadOnly)
}

func (s *Store) MarkRead(ctx context.Context, messageID, recipientID string, at time.Time) (_ *store.Recipient, err error) {
	ctx, end := s.instrument(ctx, "mark_read", attribute.String("message_id", messageID))
	defer func() { end(err) }()
	return s.backend.MarkRead(ctx, messageID, recipientID, at)
}

func (s *Store) UserCounts(ctx context.Context, userID string) (_ store.UserCounts, err error) {
	ctx, end := s.instrument(ctx, "user_counts")
	defer func() { end(err) }()
	return s.backend.UserCounts(ctx, userID)
}

func (s *Store) SystemCounts(ctx context.Context) (_ store.SystemCounts, err error) {
	ctx, end := s.instrument(ctx, "system_counts")
	defer func() { end(err) }()
	return s.backend.SystemCounts(ctx)
}
