package postbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/postbox/store"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// maxParallelViews bounds the per-user fan-out of AllMessages.
const maxParallelViews = 8

// SentMessages returns the messages sent by senderEmail, oldest first.
// Each entry lists its recipients in submission order.
func (s *service) SentMessages(ctx context.Context, senderEmail string) (_ []SentMessage, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	var out []SentMessage
	ctx, done := s.instrumentQuery(ctx, "sent")
	defer func() { done(len(out), err) }()

	user, err := s.resolve(ctx, senderEmail, ErrUnknownSender)
	if err != nil {
		return nil, err
	}
	out, err = s.sentFor(ctx, user)
	return out, err
}

// InboxMessages returns every message received by recipientEmail, oldest first.
func (s *service) InboxMessages(ctx context.Context, recipientEmail string) (_ []InboxMessage, err error) {
	return s.inbox(ctx, "inbox", recipientEmail, false)
}

// UnreadMessages returns the received messages not yet marked read.
func (s *service) UnreadMessages(ctx context.Context, recipientEmail string) (_ []InboxMessage, err error) {
	return s.inbox(ctx, "unread", recipientEmail, true)
}

func (s *service) inbox(ctx context.Context, view, recipientEmail string, unreadOnly bool) (_ []InboxMessage, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	var out []InboxMessage
	ctx, done := s.instrumentQuery(ctx, view)
	defer func() { done(len(out), err) }()

	user, err := s.resolve(ctx, recipientEmail, ErrUnknownRecipient)
	if err != nil {
		return nil, err
	}
	out, err = s.inboxFor(ctx, user, unreadOnly)
	return out, err
}

// MessageDetail returns a message with the read state of every recipient.
func (s *service) MessageDetail(ctx context.Context, messageID string) (_ *MessageDetail, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, done := s.instrumentQuery(ctx, "detail", attribute.String("message_id", messageID))
	defer func() { done(1, err) }()

	msg, err := s.store.GetMessage(ctx, strings.TrimSpace(messageID))
	if err != nil {
		if store.IsNotFound(err) || store.IsInvalidID(err) {
			return nil, ErrUnknownMessage
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return toMessageDetail(msg), nil
}

// Messages returns the user's combined view: every sent message tagged
// RoleSent and every received message tagged RoleReceived, newest first.
// The sent and inbox lookups run concurrently.
func (s *service) Messages(ctx context.Context, userEmail string) (_ []MessageView, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	var out []MessageView
	ctx, done := s.instrumentQuery(ctx, "combined")
	defer func() { done(len(out), err) }()

	user, err := s.resolve(ctx, userEmail, ErrUnknownUser)
	if err != nil {
		return nil, err
	}
	out, err = s.combinedFor(ctx, user)
	return out, err
}

// AllMessages returns the combined view of every user merged and sorted
// newest first. A message appears once per participant, tagged with the
// participant's email in Owner.
func (s *service) AllMessages(ctx context.Context) (_ []MessageView, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	var out []MessageView
	ctx, done := s.instrumentQuery(ctx, "all")
	defer func() { done(len(out), err) }()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	perUser := make([][]MessageView, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelViews)
	for i, u := range users {
		g.Go(func() error {
			views, err := s.combinedFor(gctx, u)
			if err != nil {
				return err
			}
			for j := range views {
				views[j].Owner = u.Email
			}
			perUser[i] = views
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out = lo.Flatten(perUser)
	sortViewsDesc(out)
	return out, nil
}

func (s *service) sentFor(ctx context.Context, user *User) ([]SentMessage, error) {
	msgs, err := s.store.ListSent(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list sent: %w", err)
	}
	return lo.Map(msgs, func(m *store.Message, _ int) SentMessage {
		return toSentMessage(m)
	}), nil
}

func (s *service) inboxFor(ctx context.Context, user *User, unreadOnly bool) ([]InboxMessage, error) {
	entries, err := s.store.ListInbox(ctx, user.ID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return lo.Map(entries, func(e *store.InboxEntry, _ int) InboxMessage {
		return toInboxMessage(e)
	}), nil
}

func (s *service) combinedFor(ctx context.Context, user *User) ([]MessageView, error) {
	var (
		sent  []SentMessage
		inbox []InboxMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sent, err = s.sentFor(gctx, user)
		return err
	})
	g.Go(func() error {
		var err error
		inbox, err = s.inboxFor(gctx, user, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return combineViews(sent, inbox), nil
}

// instrumentQuery starts a span for a view and returns a function that ends
// it and records the query metrics.
func (s *service) instrumentQuery(ctx context.Context, view string, attrs ...attribute.KeyValue) (context.Context, func(int, error)) {
	start := time.Now()
	attrs = append(attrs, attribute.String("view", view))
	ctx, endSpan := s.otel.startSpan(ctx, "postbox.query."+view, attrs...)
	return ctx, func(n int, err error) {
		endSpan(err)
		s.otel.recordQuery(ctx, time.Since(start), view, n, err)
	}
}
