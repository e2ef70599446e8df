package mongo

import (
	"time"

	"github.com/rbaliyan/postbox/store"
)

// userDoc is the MongoDB document for a user.
type userDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d *userDoc) toUser() *store.User {
	return &store.User{
		ID:        d.ID,
		Email:     d.Email,
		Name:      d.Name,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// messageDoc is the MongoDB document for a message and its fan-out.
type messageDoc struct {
	ID          string         `bson:"_id"`
	SenderID    string         `bson:"sender_id"`
	SenderEmail string         `bson:"sender_email"`
	Subject     string         `bson:"subject,omitempty"`
	Content     string         `bson:"content"`
	CreatedAt   time.Time      `bson:"created_at"`
	Recipients  []recipientDoc `bson:"recipients"`
}

// recipientDoc is an embedded recipient row.
type recipientDoc struct {
	ID       string     `bson:"id"`
	UserID   string     `bson:"user_id"`
	Email    string     `bson:"email"`
	Position int        `bson:"position"`
	Read     bool       `bson:"read"`
	ReadAt   *time.Time `bson:"read_at,omitempty"`
}

func (d *messageDoc) toMessage() *store.Message {
	msg := &store.Message{
		ID:          d.ID,
		SenderID:    d.SenderID,
		SenderEmail: d.SenderEmail,
		Subject:     d.Subject,
		Content:     d.Content,
		CreatedAt:   d.CreatedAt.UTC(),
		Recipients:  make([]store.Recipient, len(d.Recipients)),
	}
	for i, r := range d.Recipients {
		msg.Recipients[i] = r.toRecipient(d.ID)
	}
	return msg
}

func (r recipientDoc) toRecipient(messageID string) store.Recipient {
	rec := store.Recipient{
		ID:        r.ID,
		MessageID: messageID,
		UserID:    r.UserID,
		Email:     r.Email,
		Position:  r.Position,
		Read:      r.Read,
	}
	if r.ReadAt != nil {
		t := r.ReadAt.UTC()
		rec.ReadAt = &t
	}
	return rec
}

// inboxEntry projects the document onto one recipient.
func (d *messageDoc) inboxEntry(userID string) (*store.InboxEntry, bool) {
	for _, r := range d.Recipients {
		if r.UserID != userID {
			continue
		}
		e := &store.InboxEntry{
			MessageID:   d.ID,
			SenderID:    d.SenderID,
			SenderEmail: d.SenderEmail,
			Subject:     d.Subject,
			Content:     d.Content,
			CreatedAt:   d.CreatedAt.UTC(),
			Read:        r.Read,
		}
		if r.ReadAt != nil {
			t := r.ReadAt.UTC()
			e.ReadAt = &t
		}
		return e, true
	}
	return nil, false
}
