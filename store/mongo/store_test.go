package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/postbox/store"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestInboxEntryProjection(t *testing.T) {
	readAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := &messageDoc{
		ID:          "m1",
		SenderID:    "s1",
		SenderEmail: "sender@example.com",
		Content:     "hello",
		Recipients: []recipientDoc{
			{ID: "r1", UserID: "u1", Email: "a@example.com", Position: 0},
			{ID: "r2", UserID: "u2", Email: "b@example.com", Position: 1, Read: true, ReadAt: &readAt},
		},
	}

	e, ok := doc.inboxEntry("u2")
	if !ok {
		t.Fatal("expected entry for u2")
	}
	if !e.Read || e.ReadAt == nil || !e.ReadAt.Equal(readAt) {
		t.Errorf("unexpected read state: %+v", e)
	}
	if _, ok := doc.inboxEntry("u3"); ok {
		t.Error("expected no entry for non-recipient")
	}

	msg := doc.toMessage()
	if got := msg.RecipientEmails(); len(got) != 2 || got[0] != "a@example.com" {
		t.Errorf("unexpected recipients: %v", got)
	}
	if msg.ReadCount() != 1 {
		t.Errorf("expected 1 read, got %d", msg.ReadCount())
	}
}

func TestNotConnected(t *testing.T) {
	s := New(nil)
	if _, err := s.GetMessage(context.Background(), uuid.New().String()); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(context.Background()); err == nil {
		t.Error("expected error connecting without client")
	}
}

// setupIntegration connects to the server named by POSTBOX_TEST_MONGO_URI.
func setupIntegration(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("POSTBOX_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("POSTBOX_TEST_MONGO_URI not set")
	}
	client, err := mongo.Connect(mongoopts.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	dbName := "postbox_test_" + uuid.New().String()[:8]
	t.Cleanup(func() {
		ctx := context.Background()
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	s := New(client, WithDatabase(dbName))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func TestIntegrationFanOutAndRead(t *testing.T) {
	s := setupIntegration(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, store.UserData{Email: "alice@example.com", Name: "Alice"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.CreateUser(ctx, store.UserData{Email: "bob@example.com", Name: "Bob"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if _, err := s.CreateUser(ctx, store.UserData{Email: "bob@example.com", Name: "Bob 2"}); !errors.Is(err, store.ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}

	msg, err := s.CreateMessage(ctx, store.MessageData{
		SenderID:    alice.ID,
		SenderEmail: alice.Email,
		Subject:     "Hi",
		Content:     "hello",
		Recipients:  []store.RecipientRef{{UserID: bob.ID, Email: bob.Email}},
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	if _, err := s.MarkRead(ctx, msg.ID, bob.ID, time.Now()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := s.MarkRead(ctx, msg.ID, bob.ID, time.Now()); !errors.Is(err, store.ErrAlreadyRead) {
		t.Errorf("expected ErrAlreadyRead, got %v", err)
	}
	if _, err := s.MarkRead(ctx, msg.ID, alice.ID, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	counts, err := s.SystemCounts(ctx)
	if err != nil {
		t.Fatalf("system counts: %v", err)
	}
	if counts.Users != 2 || counts.Messages != 1 || counts.UnreadRecipients != 0 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}
