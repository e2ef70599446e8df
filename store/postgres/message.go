package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rbaliyan/postbox/store"
)

type messageRow struct {
	ID          string         `db:"id"`
	SenderID    string         `db:"sender_id"`
	SenderEmail string         `db:"sender_email"`
	Subject     sql.NullString `db:"subject"`
	Content     string         `db:"content"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r messageRow) toMessage() *store.Message {
	return &store.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		SenderEmail: r.SenderEmail,
		Subject:     r.Subject.String,
		Content:     r.Content,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type recipientRow struct {
	ID        string       `db:"id"`
	MessageID string       `db:"message_id"`
	UserID    string       `db:"recipient_id"`
	Email     string       `db:"email"`
	Position  int          `db:"position"`
	Read      bool         `db:"is_read"`
	ReadAt    sql.NullTime `db:"read_at"`
}

func (r recipientRow) toRecipient() store.Recipient {
	rec := store.Recipient{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Email:     r.Email,
		Position:  r.Position,
		Read:      r.Read,
	}
	if r.ReadAt.Valid {
		t := r.ReadAt.Time.UTC()
		rec.ReadAt = &t
	}
	return rec
}

type inboxRow struct {
	MessageID   string         `db:"id"`
	SenderID    string         `db:"sender_id"`
	SenderEmail string         `db:"sender_email"`
	Subject     sql.NullString `db:"subject"`
	Content     string         `db:"content"`
	CreatedAt   time.Time      `db:"created_at"`
	Read        bool           `db:"is_read"`
	ReadAt      sql.NullTime   `db:"read_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateMessage inserts the message and all recipient rows in one transaction.
// A missing sender or recipient fails the foreign key and rolls everything back.
func (s *Store) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if len(data.Recipients) == 0 {
		return nil, store.ErrEmptyRecipients
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

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
		CreatedAt:   createdAt.Truncate(time.Microsecond), // TIMESTAMPTZ precision
		Recipients:  make([]store.Recipient, len(data.Recipients)),
	}

	ids := make([]string, len(data.Recipients))
	userIDs := make([]string, len(data.Recipients))
	positions := make([]int64, len(data.Recipients))
	for i, r := range data.Recipients {
		ids[i] = uuid.New().String()
		userIDs[i] = r.UserID
		positions[i] = int64(i)
		msg.Recipients[i] = store.Recipient{
			ID:        ids[i],
			MessageID: msg.ID,
			UserID:    r.UserID,
			Email:     r.Email,
			Position:  i,
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertMsg := fmt.Sprintf(`
		INSERT INTO %s (id, sender_id, subject, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.messages)
	if _, err := tx.ExecContext(ctx, insertMsg, msg.ID, msg.SenderID, nullString(msg.Subject), msg.Content, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", mapError(err))
	}

	insertRecipients := fmt.Sprintf(`
		INSERT INTO %s (id, message_id, recipient_id, position)
		SELECT r.id, $1, r.recipient_id, r.position
		FROM unnest($2::uuid[], $3::uuid[], $4::int[]) AS r(id, recipient_id, position)
	`, s.recipients)
	if _, err := tx.ExecContext(ctx, insertRecipients, msg.ID, pq.Array(ids), pq.Array(userIDs), pq.Array(positions)); err != nil {
		return nil, fmt.Errorf("insert recipients: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return msg, nil
}

// GetMessage returns a message with its recipients in submission order.
func (s *Store) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var row messageRow
	query := fmt.Sprintf(`
		SELECT m.id, m.sender_id, u.email AS sender_email, m.subject, m.content, m.created_at
		FROM %s m JOIN %s u ON u.id = m.sender_id
		WHERE m.id = $1
	`, s.messages, s.users)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	msg := row.toMessage()
	recipients, err := s.loadRecipients(ctx, []string{msg.ID})
	if err != nil {
		return nil, err
	}
	msg.Recipients = recipients[msg.ID]
	return msg, nil
}

// ListSent returns the sender's messages, oldest first.
func (s *Store) ListSent(ctx context.Context, senderID string) ([]*store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var rows []messageRow
	query := fmt.Sprintf(`
		SELECT m.id, m.sender_id, u.email AS sender_email, m.subject, m.content, m.created_at
		FROM %s m JOIN %s u ON u.id = m.sender_id
		WHERE m.sender_id = $1
		ORDER BY m.created_at, m.id
	`, s.messages, s.users)
	if err := s.db.SelectContext(ctx, &rows, query, senderID); err != nil {
		return nil, fmt.Errorf("list sent: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	recipients, err := s.loadRecipients(ctx, ids)
	if err != nil {
		return nil, err
	}

	msgs := make([]*store.Message, len(rows))
	for i, r := range rows {
		msgs[i] = r.toMessage()
		msgs[i].Recipients = recipients[r.ID]
	}
	return msgs, nil
}

// loadRecipients fetches recipient rows for the given messages, keyed by message id.
func (s *Store) loadRecipients(ctx context.Context, messageIDs []string) (map[string][]store.Recipient, error) {
	var rows []recipientRow
	query := fmt.Sprintf(`
		SELECT r.id, r.message_id, r.recipient_id, u.email, r.position, r.is_read, r.read_at
		FROM %s r JOIN %s u ON u.id = r.recipient_id
		WHERE r.message_id = ANY($1::uuid[])
		ORDER BY r.message_id, r.position
	`, s.recipients, s.users)
	if err := s.db.SelectContext(ctx, &rows, query, pq.Array(messageIDs)); err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	out := make(map[string][]store.Recipient, len(messageIDs))
	for _, r := range rows {
		out[r.MessageID] = append(out[r.MessageID], r.toRecipient())
	}
	return out, nil
}

// ListInbox returns messages addressed to the recipient, oldest first.
func (s *Store) ListInbox(ctx context.Context, recipientID string, unreadOnly bool) ([]*store.InboxEntry, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	filter := ""
	if unreadOnly {
		filter = "AND NOT r.is_read"
	}
	query := fmt.Sprintf(`
		SELECT m.id, m.sender_id, u.email AS sender_email, m.subject, m.content, m.created_at,
		       r.is_read, r.read_at
		FROM %s r
		JOIN %s m ON m.id = r.message_id
		JOIN %s u ON u.id = m.sender_id
		WHERE r.recipient_id = $1 %s
		ORDER BY m.created_at, m.id
	`, s.recipients, s.messages, s.users, filter)

	var rows []inboxRow
	if err := s.db.SelectContext(ctx, &rows, query, recipientID); err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}

	entries := make([]*store.InboxEntry, len(rows))
	for i, r := range rows {
		e := &store.InboxEntry{
			MessageID:   r.MessageID,
			SenderID:    r.SenderID,
			SenderEmail: r.SenderEmail,
			Subject:     r.Subject.String,
			Content:     r.Content,
			CreatedAt:   r.CreatedAt.UTC(),
			Read:        r.Read,
		}
		if r.ReadAt.Valid {
			t := r.ReadAt.Time.UTC()
			e.ReadAt = &t
		}
		entries[i] = e
	}
	return entries, nil
}

// MarkRead flips the recipient row with a conditional update inside a
// transaction. When no row is updated, the row is re-read to tell an
// already-read row apart from a missing one.
func (s *Store) MarkRead(ctx context.Context, messageID, recipientID string, at time.Time) (*store.Recipient, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row recipientRow
	update := fmt.Sprintf(`
		UPDATE %s r SET is_read = TRUE, read_at = $3
		FROM %s u
		WHERE r.message_id = $1 AND r.recipient_id = $2 AND NOT r.is_read AND u.id = r.recipient_id
		RETURNING r.id, r.message_id, r.recipient_id, u.email, r.position, r.is_read, r.read_at
	`, s.recipients, s.users)
	err = tx.GetContext(ctx, &row, update, messageID, recipientID, at.UTC())
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
		}
		rec := row.toRecipient()
		return &rec, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("mark read: %w", err)
	}

	var isRead bool
	check := fmt.Sprintf(`SELECT is_read FROM %s WHERE message_id = $1 AND recipient_id = $2`, s.recipients)
	if err := tx.GetContext(ctx, &isRead, check, messageID, recipientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("check read state: %w", err)
	}
	return nil, store.ErrAlreadyRead
}
