// Package postbox provides a small multi-recipient messaging service.
//
// Users are identified by email. A message is sent once and fanned out to
// one or more recipients; each recipient keeps an independent read flag.
// Senders see what they sent, recipients see their inbox and unread views,
// and anyone can fetch a message's per-recipient read state.
//
// # Basic Usage
//
//	svc, err := postbox.NewService(
//	    postbox.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Connect initializes indexes/schema
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	svc.CreateUser(ctx, "alice@example.com", "Alice")
//	svc.CreateUser(ctx, "bob@example.com", "Bob")
//
//	msg, err := svc.SendMessage(ctx, postbox.SendRequest{
//	    SenderEmail:     "alice@example.com",
//	    RecipientEmails: []string{"bob@example.com"},
//	    Subject:         "Hello",
//	    Content:         "World",
//	})
//
//	unread, _ := svc.UnreadMessages(ctx, "bob@example.com")
//	err = svc.MarkRead(ctx, msg.ID, "bob@example.com")
//
// # Guarantees
//
//   - Emails are trimmed and lowercased; at most one user per address.
//   - A message and all of its recipient rows are written atomically.
//   - A recipient row goes from unread to read exactly once. Marking it
//     again returns ErrAlreadyRead.
//
// # Storage Backends
//
// The store package provides implementations for:
//   - PostgreSQL (store/postgres) - accepts *sqlx.DB, works with lib/pq and pgx
//   - MongoDB (store/mongo) - accepts *mongo.Client
//   - In-memory (store/memory) - for testing
//
// Decorators add a Redis user cache (store/cached) and OpenTelemetry
// instrumentation (store/otel).
//
// # Events
//
// The service publishes typed events using github.com/rbaliyan/event/v3.
// Pass WithRedisClient or WithEventTransport to deliver them; otherwise a
// noop transport drops them.
//
//	events := svc.Events()
//	events.MessageSent.Subscribe(ctx, handler)
//	events.MessageRead.Subscribe(ctx, handler)
//
// Available events:
//   - UserCreated - when a user is registered
//   - MessageSent - when a message is committed
//   - MessageRead - when a recipient marks a message read
package postbox
