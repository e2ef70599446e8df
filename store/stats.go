package store

// UserCounts holds per-user message counts.
type UserCounts struct {
	// Sent is the number of messages the user sent.
	Sent int64 `json:"messages_sent"`
	// Received is the number of recipient rows addressed to the user.
	Received int64 `json:"messages_received"`
	// Unread is the number of those rows not yet read.
	Unread int64 `json:"unread_count"`
}

// SystemCounts holds totals across the store.
type SystemCounts struct {
	Users    int64 `json:"total_users"`
	Messages int64 `json:"total_messages"`
	// UnreadRecipients counts recipient rows with read=false.
	UnreadRecipients int64 `json:"total_unread_messages"`
}
