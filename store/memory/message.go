package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/postbox/store"
)

// CreateMessage stores the message and its recipient rows under one lock.
// Sender and recipients must reference existing users.
func (s *Store) CreateMessage(_ context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if len(data.Recipients) == 0 {
		return nil, store.ErrEmptyRecipients
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[data.SenderID]; !ok {
		return nil, store.ErrNotFound
	}
	seen := make(map[string]struct{}, len(data.Recipients))
	for _, r := range data.Recipients {
		if _, ok := s.users[r.UserID]; !ok {
			return nil, store.ErrNotFound
		}
		if _, dup := seen[r.UserID]; dup {
			return nil, store.ErrDuplicateEntry
		}
		seen[r.UserID] = struct{}{}
	}

	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	msg := &store.Message{
		ID:          uuid.New().String(),
		SenderID:    data.SenderID,
		SenderEmail: data.SenderEmail,
		Subject:     data.Subject,
		Content:     data.Content,
		CreatedAt:   createdAt,
		Recipients:  make([]store.Recipient, len(data.Recipients)),
	}
	for i, r := range data.Recipients {
		msg.Recipients[i] = store.Recipient{
			ID:        uuid.New().String(),
			MessageID: msg.ID,
			UserID:    r.UserID,
			Email:     r.Email,
			Position:  i,
		}
	}

	s.messages[msg.ID] = msg
	s.sent[msg.SenderID] = append(s.sent[msg.SenderID], msg.ID)
	for _, r := range msg.Recipients {
		s.inbox[r.UserID] = append(s.inbox[r.UserID], msg.ID)
	}
	return msg.Clone(), nil
}

// GetMessage returns a message by id.
func (s *Store) GetMessage(_ context.Context, id string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return msg.Clone(), nil
}

// ListSent returns the sender's messages, oldest first.
func (s *Store) ListSent(_ context.Context, senderID string) ([]*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.sent[senderID]
	out := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id].Clone())
	}
	s.mu.RUnlock()

	sortMessages(out)
	return out, nil
}

// ListInbox returns messages addressed to the recipient, oldest first.
func (s *Store) ListInbox(_ context.Context, recipientID string, unreadOnly bool) ([]*store.InboxEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.inbox[recipientID]
	msgs := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, s.messages[id].Clone())
	}
	s.mu.RUnlock()

	sortMessages(msgs)

	out := make([]*store.InboxEntry, 0, len(msgs))
	for _, msg := range msgs {
		r, ok := msg.Recipient(recipientID)
		if !ok || (unreadOnly && r.Read) {
			continue
		}
		out = append(out, &store.InboxEntry{
			MessageID:   msg.ID,
			SenderID:    msg.SenderID,
			SenderEmail: msg.SenderEmail,
			Subject:     msg.Subject,
			Content:     msg.Content,
			CreatedAt:   msg.CreatedAt,
			Read:        r.Read,
			ReadAt:      r.ReadAt,
		})
	}
	return out, nil
}

// MarkRead flips the recipient row to read under the write lock.
func (s *Store) MarkRead(_ context.Context, messageID, recipientID string, at time.Time) (*store.Recipient, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i := range msg.Recipients {
		r := &msg.Recipients[i]
		if r.UserID != recipientID {
			continue
		}
		if r.Read {
			return nil, store.ErrAlreadyRead
		}
		readAt := at.UTC()
		r.Read = true
		r.ReadAt = &readAt

		out := *r
		t := readAt
		out.ReadAt = &t
		return &out, nil
	}
	return nil, store.ErrNotFound
}
