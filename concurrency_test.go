package postbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestConcurrency_MarkReadRace(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustCreateUser(t, svc, "a@x.io", "A")
	mustCreateUser(t, svc, "b@x.io", "B")
	msg := mustSend(t, svc, "a@x.io", []string{"b@x.io"}, "", "race")

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
		other     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.MarkRead(ctx, msg.ID, "b@x.io")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyRead):
				already++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one success, got %d", successes)
	}
	if already != workers-1 {
		t.Errorf("expected %d ErrAlreadyRead, got %d", workers-1, already)
	}
	for _, err := range other {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConcurrency_CreateUserRace(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Same address in different cases.
			email := "same@x.io"
			if n%2 == 0 {
				email = "SAME@x.io"
			}
			_, err := svc.CreateUser(ctx, email, fmt.Sprintf("user %d", n))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateIdentity):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != 1 || dups != workers-1 {
		t.Errorf("expected 1 created and %d duplicates, got %d and %d", workers-1, created, dups)
	}
	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected one user, got %d", len(users))
	}
}

func TestConcurrency_MultipleSenders(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithMaxConcurrentSends(3))

	const numSenders = 8
	const messagesPerSender = 5

	for i := 0; i < numSenders; i++ {
		mustCreateUser(t, svc, fmt.Sprintf("sender%d@x.io", i), "S")
	}
	mustCreateUser(t, svc, "r1@x.io", "R1")
	mustCreateUser(t, svc, "r2@x.io", "R2")

	var wg sync.WaitGroup
	errs := make(chan error, numSenders*messagesPerSender)
	for i := 0; i < numSenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < messagesPerSender; j++ {
				_, err := svc.SendMessage(ctx, SendRequest{
					SenderEmail:     fmt.Sprintf("sender%d@x.io", n),
					RecipientEmails: []string{"r1@x.io", "r2@x.io"},
					Content:         "concurrent",
				})
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("send error: %v", err)
	}

	for _, r := range []string{"r1@x.io", "r2@x.io"} {
		inbox, err := svc.InboxMessages(ctx, r)
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox) != numSenders*messagesPerSender {
			t.Errorf("%s: expected %d messages, got %d", r, numSenders*messagesPerSender, len(inbox))
		}
	}

	stats, err := svc.SystemStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalMessages != numSenders*messagesPerSender {
		t.Errorf("expected %d messages, got %d", numSenders*messagesPerSender, stats.TotalMessages)
	}
}
