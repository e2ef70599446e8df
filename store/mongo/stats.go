package mongo

import (
	"context"
	"fmt"

	"github.com/rbaliyan/postbox/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// UserCounts counts the user's sent, received and unread messages.
func (s *Store) UserCounts(ctx context.Context, userID string) (store.UserCounts, error) {
	if err := s.checkConnected(); err != nil {
		return store.UserCounts{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var counts store.UserCounts
	var err error
	if counts.Sent, err = s.messages.CountDocuments(ctx, bson.M{"sender_id": userID}); err != nil {
		return store.UserCounts{}, fmt.Errorf("count sent: %w", err)
	}
	if counts.Received, err = s.messages.CountDocuments(ctx, bson.M{"recipients.user_id": userID}); err != nil {
		return store.UserCounts{}, fmt.Errorf("count received: %w", err)
	}
	unread := bson.M{"recipients": bson.M{"$elemMatch": bson.M{"user_id": userID, "read": false}}}
	if counts.Unread, err = s.messages.CountDocuments(ctx, unread); err != nil {
		return store.UserCounts{}, fmt.Errorf("count unread: %w", err)
	}
	return counts, nil
}

// SystemCounts returns store-wide totals.
func (s *Store) SystemCounts(ctx context.Context) (store.SystemCounts, error) {
	if err := s.checkConnected(); err != nil {
		return store.SystemCounts{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var counts store.SystemCounts
	var err error
	if counts.Users, err = s.users.CountDocuments(ctx, bson.M{}); err != nil {
		return store.SystemCounts{}, fmt.Errorf("count users: %w", err)
	}
	if counts.Messages, err = s.messages.CountDocuments(ctx, bson.M{}); err != nil {
		return store.SystemCounts{}, fmt.Errorf("count messages: %w", err)
	}

	pipeline := bson.A{
		bson.M{"$unwind": "$recipients"},
		bson.M{"$match": bson.M{"recipients.read": false}},
		bson.M{"$count": "unread"},
	}
	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return store.SystemCounts{}, fmt.Errorf("count unread: %w", err)
	}
	var results []struct {
		Unread int64 `bson:"unread"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return store.SystemCounts{}, fmt.Errorf("decode unread count: %w", err)
	}
	if len(results) > 0 {
		counts.UnreadRecipients = results[0].Unread
	}
	return counts, nil
}
