package postbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for postbox events.
const (
	EventNameUserCreated = "postbox.user.created"
	EventNameMessageSent = "postbox.message.sent"
	EventNameMessageRead = "postbox.message.read"
)

// UserCreatedEvent is published when a user joins the directory.
type UserCreatedEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageSentEvent is published after a message and all its recipient rows
// are committed.
type MessageSentEvent struct {
	MessageID       string    `json:"message_id"`
	SenderEmail     string    `json:"sender_email"`
	RecipientEmails []string  `json:"recipient_emails"`
	Subject         string    `json:"subject,omitempty"`
	SentAt          time.Time `json:"sent_at"`
}

// MessageReadEvent is published when a recipient marks a message read.
// Use this for read receipts.
type MessageReadEvent struct {
	MessageID      string    `json:"message_id"`
	RecipientEmail string    `json:"recipient_email"`
	ReadAt         time.Time `json:"read_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus.
//
// Subscribe to events:
//
//	svc.Events().MessageSent.Subscribe(ctx, handler)
//	svc.Events().MessageRead.Subscribe(ctx, handler)
type ServiceEvents struct {
	UserCreated event.Event[UserCreatedEvent]
	MessageSent event.Event[MessageSentEvent]
	MessageRead event.Event[MessageReadEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		UserCreated: event.New[UserCreatedEvent](namePrefix + "." + EventNameUserCreated),
		MessageSent: event.New[MessageSentEvent](namePrefix + "." + EventNameMessageSent),
		MessageRead: event.New[MessageReadEvent](namePrefix + "." + EventNameMessageRead),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.UserCreated); err != nil {
		return fmt.Errorf("register UserCreated: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageSent); err != nil {
		return fmt.Errorf("register MessageSent: %w", err)
	}
	if err := event.Register(ctx, bus, events.MessageRead); err != nil {
		return fmt.Errorf("register MessageRead: %w", err)
	}
	return nil
}

// publish sends data on ev. A failure is reported to the failure handler,
// or returned as *EventPublishError when event errors are fatal.
func publish[T any](ctx context.Context, s *service, ev event.Event[T], name, entityID string, data T) error {
	err := ev.Publish(ctx, data)
	if err == nil {
		return nil
	}
	if s.opts.events.fatal {
		return &EventPublishError{Event: name, EntityID: entityID, Err: err}
	}
	s.opts.reportEventFailure(name, err)
	return nil
}
