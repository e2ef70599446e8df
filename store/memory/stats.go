package memory

import (
	"context"

	"github.com/rbaliyan/postbox/store"
)

// UserCounts counts the user's sent, received and unread messages.
func (s *Store) UserCounts(_ context.Context, userID string) (store.UserCounts, error) {
	if err := s.checkConnected(); err != nil {
		return store.UserCounts{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := store.UserCounts{
		Sent:     int64(len(s.sent[userID])),
		Received: int64(len(s.inbox[userID])),
	}
	for _, id := range s.inbox[userID] {
		if r, ok := s.messages[id].Recipient(userID); ok && !r.Read {
			counts.Unread++
		}
	}
	return counts, nil
}

// SystemCounts returns store-wide totals from one consistent snapshot.
func (s *Store) SystemCounts(_ context.Context) (store.SystemCounts, error) {
	if err := s.checkConnected(); err != nil {
		return store.SystemCounts{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := store.SystemCounts{
		Users:    int64(len(s.users)),
		Messages: int64(len(s.messages)),
	}
	for _, msg := range s.messages {
		for _, r := range msg.Recipients {
			if !r.Read {
				counts.UnreadRecipients++
			}
		}
	}
	return counts, nil
}
