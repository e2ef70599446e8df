package postbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/postbox/store"
	"go.opentelemetry.io/otel/attribute"
)

// SendMessage delivers one message to every recipient in a single atomic
// store write. Either the message and all recipient rows exist afterwards,
// or nothing does.
//
// Checks run in a fixed order: sender format, recipient formats, duplicate
// recipients, content and limits, sender existence, then recipient existence
// in submission order. The first failure is returned.
func (s *service) SendMessage(ctx context.Context, req SendRequest) (*SentMessage, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	// Validate before acquiring the semaphore to avoid wasting slots.
	senderEmail, recipientEmails, err := ValidateSendRequest(req, s.opts.getLimits())
	if err != nil {
		return nil, err
	}
	req.SenderEmail = senderEmail
	req.RecipientEmails = recipientEmails

	ctx, endSpan := s.otel.startSpan(ctx, "postbox.send",
		attribute.Int("recipient_count", len(recipientEmails)),
	)
	start := time.Now()
	var sendErr error
	defer func() {
		endSpan(sendErr)
		s.otel.recordSend(ctx, time.Since(start), len(recipientEmails), sendErr)
	}()

	if err := s.sendSem.Acquire(ctx, 1); err != nil {
		sendErr = err
		return nil, sendErr
	}
	defer s.sendSem.Release(1)

	sender, err := s.resolve(ctx, senderEmail, ErrUnknownSender)
	if err != nil {
		sendErr = err
		return nil, sendErr
	}

	refs := make([]store.RecipientRef, 0, len(recipientEmails))
	for _, email := range recipientEmails {
		user, err := s.lookupEmail(ctx, email)
		if err != nil {
			sendErr = err
			return nil, sendErr
		}
		if user == nil {
			sendErr = &RecipientError{Email: email, Err: ErrUnknownRecipient}
			return nil, sendErr
		}
		refs = append(refs, store.RecipientRef{UserID: user.ID, Email: user.Email})
	}

	if err := s.plugins.beforeSend(ctx, req); err != nil {
		sendErr = err
		return nil, sendErr
	}

	msg, err := s.store.CreateMessage(ctx, store.MessageData{
		SenderID:    sender.ID,
		SenderEmail: sender.Email,
		Subject:     req.Subject,
		Content:     req.Content,
		Recipients:  refs,
		CreatedAt:   s.opts.now(),
	})
	if err != nil {
		sendErr = fmt.Errorf("create message: %w", err)
		return nil, sendErr
	}

	sent := toSentMessage(msg)
	s.logger.Debug("message sent", "message_id", sent.ID, "recipient_count", len(refs))

	if err := publish(ctx, s, s.events.MessageSent, "MessageSent", sent.ID, MessageSentEvent{
		MessageID:       sent.ID,
		SenderEmail:     sent.SenderEmail,
		RecipientEmails: sent.RecipientEmails,
		Subject:         sent.Subject,
		SentAt:          sent.Timestamp,
	}); err != nil {
		sendErr = err
		return &sent, sendErr
	}

	s.plugins.afterSend(ctx, &sent)

	return &sent, nil
}
