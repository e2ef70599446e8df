package store

import "time"

// Message is a stored message together with its recipient rows.
type Message struct {
	ID          string
	SenderID    string
	SenderEmail string
	// Subject is empty when the sender supplied none.
	Subject    string
	Content    string
	CreatedAt  time.Time
	Recipients []Recipient
}

// Recipient is the per-recipient delivery row of a message.
// ReadAt is non-nil exactly when Read is true.
type Recipient struct {
	ID        string
	MessageID string
	UserID    string
	Email     string
	Position  int
	Read      bool
	ReadAt    *time.Time
}

// InboxEntry is a received message seen from one recipient.
type InboxEntry struct {
	MessageID   string
	SenderID    string
	SenderEmail string
	Subject     string
	Content     string
	CreatedAt   time.Time
	Read        bool
	ReadAt      *time.Time
}

// RecipientRef identifies a resolved recipient at send time.
type RecipientRef struct {
	UserID string
	Email  string
}

// MessageData holds the fields needed to create a message.
// Recipients are stored in the given order and must be distinct.
type MessageData struct {
	SenderID    string
	SenderEmail string
	Subject     string
	Content     string
	Recipients  []RecipientRef
	CreatedAt   time.Time
}

// RecipientEmails returns the recipient emails in submission order.
func (m *Message) RecipientEmails() []string {
	out := make([]string, len(m.Recipients))
	for i, r := range m.Recipients {
		out[i] = r.Email
	}
	return out
}

// ReadCount returns the number of recipients that have read the message.
func (m *Message) ReadCount() int {
	n := 0
	for _, r := range m.Recipients {
		if r.Read {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Recipients = make([]Recipient, len(m.Recipients))
	for i, r := range m.Recipients {
		c.Recipients[i] = r.clone()
	}
	return &c
}

func (r Recipient) clone() Recipient {
	if r.ReadAt != nil {
		t := *r.ReadAt
		r.ReadAt = &t
	}
	return r
}

// Recipient returns the row for userID, if present.
func (m *Message) Recipient(userID string) (Recipient, bool) {
	for _, r := range m.Recipients {
		if r.UserID == userID {
			return r, true
		}
	}
	return Recipient{}, false
}
