package postbox

import (
	"cmp"
	"slices"
	"time"

	"github.com/rbaliyan/postbox/store"
	"github.com/samber/lo"
)

// User is a directory entry.
type User = store.User

// UserCounts holds per-user message counts.
type UserCounts = store.UserCounts

// SendRequest contains the data needed to send a message.
// Subject is optional; an empty subject means the message has none.
type SendRequest struct {
	SenderEmail     string   `json:"sender_email"`
	RecipientEmails []string `json:"recipient_emails"`
	Subject         string   `json:"subject,omitempty"`
	Content         string   `json:"content"`
}

// SentMessage is a message seen from its sender.
type SentMessage struct {
	ID              string    `json:"id"`
	SenderEmail     string    `json:"sender_email"`
	RecipientEmails []string  `json:"recipient_emails"`
	Subject         string    `json:"subject,omitempty"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp"`
}

// InboxMessage is a received message seen from one recipient.
type InboxMessage struct {
	ID          string     `json:"id"`
	SenderEmail string     `json:"sender_email"`
	Subject     string     `json:"subject,omitempty"`
	Content     string     `json:"content"`
	Timestamp   time.Time  `json:"timestamp"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at"`
}

// RecipientStatus is the read state of one recipient of a message.
type RecipientStatus struct {
	Email  string     `json:"email"`
	Read   bool       `json:"read"`
	ReadAt *time.Time `json:"read_at"`
}

// MessageDetail is the full view of a message with per-recipient read state.
type MessageDetail struct {
	ID              string            `json:"id"`
	SenderEmail     string            `json:"sender_email"`
	Subject         string            `json:"subject,omitempty"`
	Content         string            `json:"content"`
	Timestamp       time.Time         `json:"timestamp"`
	Recipients      []RecipientStatus `json:"recipients"`
	TotalRecipients int               `json:"total_recipients"`
	ReadCount       int               `json:"read_count"`
	UnreadCount     int               `json:"unread_count"`
}

// Role tags an entry of the combined view.
type Role string

const (
	RoleSent     Role = "sent"
	RoleReceived Role = "received"
)

// MessageView is one entry of a user's combined sent and received view.
// Read and ReadAt are only meaningful for received entries; RecipientEmails
// only for sent entries.
type MessageView struct {
	// Owner is the user whose view the entry belongs to. Only set by AllMessages.
	Owner           string     `json:"user_email,omitempty"`
	ID              string     `json:"id"`
	Role            Role       `json:"type"`
	SenderEmail     string     `json:"sender_email"`
	RecipientEmails []string   `json:"recipient_emails,omitempty"`
	Subject         string     `json:"subject,omitempty"`
	Content         string     `json:"content"`
	Timestamp       time.Time  `json:"timestamp"`
	Read            bool       `json:"read,omitempty"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
}

// UserProfile is a user together with their message counts.
type UserProfile struct {
	User  *User      `json:"user"`
	Stats UserCounts `json:"stats"`
}

// SystemStats holds totals across the service.
type SystemStats struct {
	TotalUsers             int64   `json:"total_users"`
	TotalMessages          int64   `json:"total_messages"`
	TotalUnreadMessages    int64   `json:"total_unread_messages"`
	AverageMessagesPerUser float64 `json:"average_messages_per_user"`
}

func toSentMessage(m *store.Message) SentMessage {
	return SentMessage{
		ID:              m.ID,
		SenderEmail:     m.SenderEmail,
		RecipientEmails: m.RecipientEmails(),
		Subject:         m.Subject,
		Content:         m.Content,
		Timestamp:       m.CreatedAt,
	}
}

func toInboxMessage(e *store.InboxEntry) InboxMessage {
	return InboxMessage{
		ID:          e.MessageID,
		SenderEmail: e.SenderEmail,
		Subject:     e.Subject,
		Content:     e.Content,
		Timestamp:   e.CreatedAt,
		Read:        e.Read,
		ReadAt:      e.ReadAt,
	}
}

func toMessageDetail(m *store.Message) *MessageDetail {
	read := m.ReadCount()
	return &MessageDetail{
		ID:          m.ID,
		SenderEmail: m.SenderEmail,
		Subject:     m.Subject,
		Content:     m.Content,
		Timestamp:   m.CreatedAt,
		Recipients: lo.Map(m.Recipients, func(r store.Recipient, _ int) RecipientStatus {
			return RecipientStatus{Email: r.Email, Read: r.Read, ReadAt: r.ReadAt}
		}),
		TotalRecipients: len(m.Recipients),
		ReadCount:       read,
		UnreadCount:     len(m.Recipients) - read,
	}
}

// combineViews merges sent and received entries, newest first.
// Ties on timestamp are broken by role, then id, so the order is total.
func combineViews(sent []SentMessage, inbox []InboxMessage) []MessageView {
	views := make([]MessageView, 0, len(sent)+len(inbox))
	views = append(views, lo.Map(sent, func(m SentMessage, _ int) MessageView {
		return MessageView{
			ID:              m.ID,
			Role:            RoleSent,
			SenderEmail:     m.SenderEmail,
			RecipientEmails: m.RecipientEmails,
			Subject:         m.Subject,
			Content:         m.Content,
			Timestamp:       m.Timestamp,
		}
	})...)
	views = append(views, lo.Map(inbox, func(m InboxMessage, _ int) MessageView {
		return MessageView{
			ID:          m.ID,
			Role:        RoleReceived,
			SenderEmail: m.SenderEmail,
			Subject:     m.Subject,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			Read:        m.Read,
			ReadAt:      m.ReadAt,
		}
	})...)
	sortViewsDesc(views)
	return views
}

func sortViewsDesc(views []MessageView) {
	slices.SortStableFunc(views, func(a, b MessageView) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Role, b.Role); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Owner, b.Owner)
	})
}
