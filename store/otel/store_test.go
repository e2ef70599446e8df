package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/postbox/store"
	"github.com/rbaliyan/postbox/store/memory"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestInstrumentedStorePassesThrough(t *testing.T) {
	ctx := context.Background()
	s, err := New(memory.New(),
		WithBackend("memory"),
		WithTracerProvider(tracenoop.NewTracerProvider()),
		WithMeterProvider(metricnoop.NewMeterProvider()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close(ctx)

	alice, err := s.CreateUser(ctx, store.UserData{Email: "alice@example.com", Name: "Alice"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.CreateUser(ctx, store.UserData{Email: "bob@example.com", Name: "Bob"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	msg, err := s.CreateMessage(ctx, store.MessageData{
		SenderID:   alice.ID,
		Content:    "hi",
		Recipients: []store.RecipientRef{{UserID: bob.ID, Email: bob.Email}},
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	if _, err := s.MarkRead(ctx, msg.ID, bob.ID, time.Now()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := s.MarkRead(ctx, msg.ID, bob.ID, time.Now()); !errors.Is(err, store.ErrAlreadyRead) {
		t.Errorf("expected ErrAlreadyRead through wrapper, got %v", err)
	}

	counts, err := s.SystemCounts(ctx)
	if err != nil {
		t.Fatalf("system counts: %v", err)
	}
	if counts.Users != 2 || counts.Messages != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestDisabledInstrumentation(t *testing.T) {
	s, err := New(memory.New(), WithTracing(false), WithMetrics(false))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.tracer != nil {
		t.Error("expected no tracer when tracing disabled")
	}
	if _, err := s.ListUsers(context.Background()); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
