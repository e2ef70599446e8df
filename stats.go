package postbox

import (
	"context"
	"fmt"
	"math"

	"github.com/rbaliyan/postbox/store"
)

// UserProfile returns the user with their sent, received and unread counts.
func (s *service) UserProfile(ctx context.Context, userID string) (_ *UserProfile, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, done := s.instrumentQuery(ctx, "profile")
	defer func() { done(1, err) }()

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownUser
	}

	counts, err := s.store.UserCounts(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("user counts: %w", err)
	}
	return &UserProfile{User: user, Stats: counts}, nil
}

// SystemStats returns totals across the service. The average number of
// messages per user is rounded to two decimal places and is zero when
// there are no users.
func (s *service) SystemStats(ctx context.Context) (_ *SystemStats, err error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	ctx, done := s.instrumentQuery(ctx, "stats")
	defer func() { done(1, err) }()

	counts, err := s.store.SystemCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("system counts: %w", err)
	}
	return systemStats(counts), nil
}

func systemStats(c store.SystemCounts) *SystemStats {
	var avg float64
	if c.Users > 0 {
		avg = math.Round(float64(c.Messages)/float64(c.Users)*100) / 100
	}
	return &SystemStats{
		TotalUsers:             c.Users,
		TotalMessages:          c.Messages,
		TotalUnreadMessages:    c.UnreadRecipients,
		AverageMessagesPerUser: avg,
	}
}
