package postbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbaliyan/postbox/store"
	"go.opentelemetry.io/otel/attribute"
)

// MarkRead marks the message read for one recipient.
//
// The store performs the flip as a single conditional update, so when
// several callers race on the same row exactly one succeeds and the rest
// get ErrAlreadyRead.
func (s *service) MarkRead(ctx context.Context, messageID, recipientEmail string) (err error) {
	if err := s.checkConnected(); err != nil {
		return err
	}

	messageID = strings.TrimSpace(messageID)
	ctx, endSpan := s.otel.startSpan(ctx, "postbox.mark_read",
		attribute.String("message_id", messageID),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		s.otel.recordMarkRead(ctx, time.Since(start), err)
	}()

	user, err := s.resolve(ctx, recipientEmail, ErrUnknownRecipient)
	if err != nil {
		return err
	}

	row, err := s.store.MarkRead(ctx, messageID, user.ID, s.opts.now())
	if err != nil {
		switch {
		case store.IsAlreadyRead(err):
			return ErrAlreadyRead
		case store.IsNotFound(err), store.IsInvalidID(err):
			return ErrNotARecipient
		default:
			return fmt.Errorf("mark read: %w", err)
		}
	}

	readAt := s.opts.now()
	if row.ReadAt != nil {
		readAt = *row.ReadAt
	}
	s.logger.Debug("message marked read", "message_id", messageID, "user_id", user.ID)

	if err := publish(ctx, s, s.events.MessageRead, "MessageRead", messageID, MessageReadEvent{
		MessageID:      messageID,
		RecipientEmail: user.Email,
		ReadAt:         readAt,
	}); err != nil {
		return err
	}

	s.plugins.afterRead(ctx, messageID, user.Email)
	return nil
}
