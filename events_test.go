package postbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/channel"
	"github.com/rbaliyan/postbox/store/memory"
)

func TestEventsDelivered(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithEventTransport(channel.New()))

	sent := make(chan MessageSentEvent, 1)
	read := make(chan MessageReadEvent, 1)
	created := make(chan UserCreatedEvent, 4)

	events := svc.Events()
	if err := events.MessageSent.Subscribe(ctx, func(_ context.Context, _ event.Event[MessageSentEvent], data MessageSentEvent) error {
		sent <- data
		return nil
	}); err != nil {
		t.Fatalf("subscribe sent: %v", err)
	}
	if err := events.MessageRead.Subscribe(ctx, func(_ context.Context, _ event.Event[MessageReadEvent], data MessageReadEvent) error {
		read <- data
		return nil
	}); err != nil {
		t.Fatalf("subscribe read: %v", err)
	}
	if err := events.UserCreated.Subscribe(ctx, func(_ context.Context, _ event.Event[UserCreatedEvent], data UserCreatedEvent) error {
		created <- data
		return nil
	}); err != nil {
		t.Fatalf("subscribe created: %v", err)
	}

	mustCreateUser(t, svc, "a@x.io", "A")
	mustCreateUser(t, svc, "b@x.io", "B")
	msg := mustSend(t, svc, "a@x.io", []string{"b@x.io"}, "s", "c")
	if err := svc.MarkRead(ctx, msg.ID, "b@x.io"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	select {
	case e := <-created:
		if e.Email != "a@x.io" && e.Email != "b@x.io" {
			t.Errorf("unexpected user event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for UserCreated")
	}

	select {
	case e := <-sent:
		if e.MessageID != msg.ID || len(e.RecipientEmails) != 1 || e.RecipientEmails[0] != "b@x.io" {
			t.Errorf("unexpected sent event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MessageSent")
	}

	select {
	case e := <-read:
		if e.MessageID != msg.ID || e.RecipientEmail != "b@x.io" || e.ReadAt.IsZero() {
			t.Errorf("unexpected read event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for MessageRead")
	}
}

func TestServicesHaveIndependentEvents(t *testing.T) {
	a := setupTestService(t)
	b := setupTestService(t)
	if a.Events() == b.Events() {
		t.Error("expected distinct per-service events")
	}
}

func TestPublishFailure(t *testing.T) {
	ctx := context.Background()
	// An event never registered with a bus cannot be published.
	unbound := event.New[MessageSentEvent]("postbox.test.unbound")
	if err := unbound.Publish(ctx, MessageSentEvent{}); err == nil {
		t.Skip("unbound events publish without error in this event version")
	}

	t.Run("reported to handler by default", func(t *testing.T) {
		var reported string
		svc, err := NewService(WithStore(memory.New()), WithEventPublishFailureHandler(func(name string, err error) {
			reported = name
		}))
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		s := svc.(*service)
		if err := publish(ctx, s, unbound, "MessageSent", "m1", MessageSentEvent{MessageID: "m1"}); err != nil {
			t.Errorf("expected nil error when not fatal, got %v", err)
		}
		if reported != "MessageSent" {
			t.Errorf("expected failure handler call, got %q", reported)
		}
	})

	t.Run("fatal returns EventPublishError", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()), WithEventErrorsFatal(true))
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		s := svc.(*service)
		err = publish(ctx, s, unbound, "MessageSent", "m1", MessageSentEvent{MessageID: "m1"})
		var epe *EventPublishError
		if !errors.As(err, &epe) || epe.EntityID != "m1" {
			t.Errorf("expected EventPublishError, got %v", err)
		}
	})
}
