// Package mongo provides a MongoDB implementation of store.Store.
//
// Recipient rows are embedded in the message document, so a message and
// its full fan-out are written by a single insert and a read flip is a
// single-document positional update. Neither needs a multi-document
// transaction, so standalone servers are supported.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rbaliyan/postbox/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ store.Store = (*Store)(nil)

// Store keeps users and messages in two collections of one database.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	users     *mongo.Collection
	messages  *mongo.Collection
	opts      *options
	connected atomic.Bool
	logger    *slog.Logger
}

// New wraps client. The client stays owned by the caller; Connect pings it
// and builds the indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

func (s *Store) Connect(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("mongo: client is required")
	}
	if s.connected.Load() {
		return store.ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	s.users = s.db.Collection(s.opts.usersCollection)
	s.messages = s.db.Collection(s.opts.messagesCollection)

	if err := s.ensureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	s.connected.Store(true)
	s.logger.Info("mongo store ready", "database", s.opts.database,
		"users", s.opts.usersCollection, "messages", s.opts.messagesCollection)
	return nil
}

// Close only flips the store to disconnected. Disconnect the client yourself.
func (s *Store) Close(_ context.Context) error {
	s.connected.Store(false)
	return nil
}

// ensureIndexes backs the unique email rule and the sent, inbox and unread
// views.
func (s *Store) ensureIndexes(ctx context.Context) error {
	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "email", Value: 1}},
			Options: mongoopts.Index().SetUnique(true),
		},
		{Keys: bson.D{
			bson.E{Key: "created_at", Value: 1},
			bson.E{Key: "_id", Value: 1},
		}},
	}
	if _, err := s.users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			bson.E{Key: "sender_id", Value: 1},
			bson.E{Key: "created_at", Value: 1},
		}},
		{Keys: bson.D{
			bson.E{Key: "recipients.user_id", Value: 1},
			bson.E{Key: "created_at", Value: 1},
		}},
		{Keys: bson.D{bson.E{Key: "recipients.read", Value: 1}}},
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	return nil
}

func (s *Store) checkConnected() error {
	if !s.connected.Load() {
		return store.ErrNotConnected
	}
	return nil
}

// chronological sorts oldest first with the id as tiebreak.
var chronological = bson.D{
	bson.E{Key: "created_at", Value: 1},
	bson.E{Key: "_id", Value: 1},
}
