package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/postbox/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateMessage writes the message with its embedded recipient rows in a
// single document insert.
func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if len(data.Recipients) == 0 {
		return nil, store.ErrEmptyRecipients
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	userIDs := []string{data.SenderID}
	seen := map[string]struct{}{data.SenderID: {}}
	recipients := make(map[string]struct{}, len(data.Recipients))
	for _, r := range data.Recipients {
		if _, dup := recipients[r.UserID]; dup {
			return nil, store.ErrDuplicateEntry
		}
		recipients[r.UserID] = struct{}{}
		if _, ok := seen[r.UserID]; !ok {
			seen[r.UserID] = struct{}{}
			userIDs = append(userIDs, r.UserID)
		}
	}
	n, err := s.countUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("check users: %w", err)
	}
	if n != int64(len(userIDs)) {
		return nil, store.ErrNotFound
	}

	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	doc := &messageDoc{
		ID:          uuid.New().String(),
		SenderID:    data.SenderID,
		SenderEmail: data.SenderEmail,
		Subject:     data.Subject,
		Content:     data.Content,
		CreatedAt:   createdAt.Truncate(time.Millisecond),
		Recipients:  make([]recipientDoc, len(data.Recipients)),
	}
	for i, r := range data.Recipients {
		doc.Recipients[i] = recipientDoc{
			ID:       uuid.New().String(),
			UserID:   r.UserID,
			Email:    r.Email,
			Position: i,
		}
	}

	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return doc.toMessage(), nil
}

// GetMessage returns a message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return doc.toMessage(), nil
}

// ListSent returns the sender's messages, oldest first.
func (s *Store) ListSent(ctx context.Context, senderID string) ([]*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	docs, err := s.findMessages(ctx, bson.M{"sender_id": senderID})
	if err != nil {
		return nil, fmt.Errorf("list sent: %w", err)
	}
	msgs := make([]*store.Message, len(docs))
	for i := range docs {
		msgs[i] = docs[i].toMessage()
	}
	return msgs, nil
}

// ListInbox returns messages addressed to the recipient, oldest first.
func (s *Store) ListInbox(ctx context.Context, recipientID string, unreadOnly bool) ([]*store.InboxEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	match := bson.M{"user_id": recipientID}
	if unreadOnly {
		match["read"] = false
	}
	docs, err := s.findMessages(ctx, bson.M{"recipients": bson.M{"$elemMatch": match}})
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}

	entries := make([]*store.InboxEntry, 0, len(docs))
	for i := range docs {
		if e, ok := docs[i].inboxEntry(recipientID); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Store) findMessages(ctx context.Context, filter bson.M) ([]messageDoc, error) {
	cursor, err := s.messages.Find(ctx, filter, mongoopts.Find().SetSort(chronological))
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// MarkRead flips the embedded recipient row with a positional update that
// only matches while the row is unread.
func (s *Store) MarkRead(ctx context.Context, messageID, recipientID string, at time.Time) (*store.Recipient, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	readAt := at.UTC().Truncate(time.Millisecond)
	filter := bson.M{
		"_id":        messageID,
		"recipients": bson.M{"$elemMatch": bson.M{"user_id": recipientID, "read": false}},
	}
	update := bson.M{"$set": bson.M{
		"recipients.$.read":    true,
		"recipients.$.read_at": readAt,
	}}
	opts := mongoopts.FindOneAndUpdate().SetReturnDocument(mongoopts.After)

	var doc messageDoc
	err := s.messages.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		for _, r := range doc.Recipients {
			if r.UserID == recipientID {
				rec := r.toRecipient(doc.ID)
				return &rec, nil
			}
		}
		return nil, store.ErrNotFound
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("mark read: %w", err)
	}

	n, err := s.messages.CountDocuments(ctx, bson.M{"_id": messageID, "recipients.user_id": recipientID})
	if err != nil {
		return nil, fmt.Errorf("check read state: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrAlreadyRead
}
