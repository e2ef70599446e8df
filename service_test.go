package postbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/postbox/store"
	"github.com/rbaliyan/postbox/store/memory"
)

// tickingClock returns a clock that advances one second per call, so
// messages sent in sequence get distinct, increasing timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func setupTestService(t *testing.T, opts ...Option) Service {
	t.Helper()
	opts = append([]Option{WithStore(memory.New()), WithClock(tickingClock())}, opts...)
	svc, err := NewService(opts...)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func mustCreateUser(t *testing.T, svc Service, email, name string) *User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), email, name)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func mustSend(t *testing.T, svc Service, from string, to []string, subject, content string) *SentMessage {
	t.Helper()
	msg, err := svc.SendMessage(context.Background(), SendRequest{
		SenderEmail:     from,
		RecipientEmails: to,
		Subject:         subject,
		Content:         content,
	})
	if err != nil {
		t.Fatalf("send from %s: %v", from, err)
	}
	return msg
}

func TestNewService(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := NewService()
		if !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("creates service with store", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc == nil {
			t.Fatal("expected non-nil service")
		}
		if svc.IsConnected() {
			t.Error("new service should not be connected")
		}
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(WithStore(memory.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.CreateUser(ctx, "a@example.com", "A"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}

	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if !svc.IsConnected() {
		t.Error("expected connected")
	}
	if svc.Events() == nil {
		t.Error("expected events after connect")
	}

	if err := svc.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Errorf("second close should not error, got %v", err)
	}

	if _, err := svc.ListUsers(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
	if !errors.Is(ErrNotConnected, store.ErrNotConnected) {
		t.Error("ErrNotConnected should wrap store.ErrNotConnected")
	}
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)

	t.Run("normalizes email", func(t *testing.T) {
		u, err := svc.CreateUser(ctx, "  Alice@Example.COM ", " Alice ")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if u.Email != "alice@example.com" {
			t.Errorf("expected normalized email, got %q", u.Email)
		}
		if u.Name != "Alice" {
			t.Errorf("expected trimmed name, got %q", u.Name)
		}
		if u.ID == "" || u.CreatedAt.IsZero() {
			t.Errorf("expected generated id and timestamp, got %+v", u)
		}
	})

	t.Run("rejects duplicate identity", func(t *testing.T) {
		_, err := svc.CreateUser(ctx, "ALICE@example.com", "Other")
		if !errors.Is(err, ErrDuplicateIdentity) {
			t.Errorf("expected ErrDuplicateIdentity, got %v", err)
		}
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		for _, email := range []string{"", "alice", "a@b", "@example.com", "a@@example.com", "a b@example.com"} {
			_, err := svc.CreateUser(ctx, email, "X")
			if !errors.Is(err, ErrInvalidEmailFormat) {
				t.Errorf("%q: expected ErrInvalidEmailFormat, got %v", email, err)
			}
		}
	})

	t.Run("rejects invalid name", func(t *testing.T) {
		if _, err := svc.CreateUser(ctx, "blank@example.com", "   "); !errors.Is(err, ErrInvalidName) {
			t.Errorf("expected ErrInvalidName, got %v", err)
		}
	})
}

func TestUserLookup(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	alice := mustCreateUser(t, svc, "alice@example.com", "Alice")
	bob := mustCreateUser(t, svc, "bob@example.com", "Bob")

	t.Run("by email", func(t *testing.T) {
		u, err := svc.GetUserByEmail(ctx, " ALICE@example.com")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if u == nil || u.ID != alice.ID {
			t.Errorf("expected alice, got %+v", u)
		}
	})

	t.Run("absent email is nil without error", func(t *testing.T) {
		u, err := svc.GetUserByEmail(ctx, "nobody@example.com")
		if err != nil || u != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", u, err)
		}
	})

	t.Run("by id", func(t *testing.T) {
		u, err := svc.GetUserByID(ctx, bob.ID)
		if err != nil || u == nil || u.Email != "bob@example.com" {
			t.Errorf("expected bob, got (%v, %v)", u, err)
		}
	})

	t.Run("malformed id is nil without error", func(t *testing.T) {
		u, err := svc.GetUserByID(ctx, "not-a-uuid")
		if err != nil || u != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", u, err)
		}
	})

	t.Run("list is stable", func(t *testing.T) {
		users, err := svc.ListUsers(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(users) != 2 || users[0].ID != alice.ID || users[1].ID != bob.ID {
			t.Errorf("unexpected user list: %+v", users)
		}
	})

	t.Run("users with id", func(t *testing.T) {
		users, err := svc.Users(ctx, alice.ID)
		if err != nil {
			t.Fatalf("users: %v", err)
		}
		if len(users) != 1 || users[0].ID != alice.ID {
			t.Errorf("expected only alice, got %+v", users)
		}
		if _, err := svc.Users(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrUnknownUser) {
			t.Errorf("expected ErrUnknownUser, got %v", err)
		}
		all, err := svc.Users(ctx, "")
		if err != nil || len(all) != 2 {
			t.Errorf("expected all users, got (%d, %v)", len(all), err)
		}
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustCreateUser(t, svc, "alice@example.com", "Alice")
	mustCreateUser(t, svc, "bob@example.com", "Bob")
	mustCreateUser(t, svc, "carol@example.com", "Carol")

	t.Run("fan-out to all recipients", func(t *testing.T) {
		msg := mustSend(t, svc, "Alice@example.com", []string{"bob@example.com", " CAROL@example.com"}, "Hi", "Hello both")
		if msg.SenderEmail != "alice@example.com" {
			t.Errorf("unexpected sender %q", msg.SenderEmail)
		}
		if len(msg.RecipientEmails) != 2 || msg.RecipientEmails[0] != "bob@example.com" || msg.RecipientEmails[1] != "carol@example.com" {
			t.Errorf("unexpected recipients %v", msg.RecipientEmails)
		}

		for _, r := range []string{"bob@example.com", "carol@example.com"} {
			inbox, err := svc.InboxMessages(ctx, r)
			if err != nil {
				t.Fatalf("inbox %s: %v", r, err)
			}
			if len(inbox) != 1 || inbox[0].ID != msg.ID || inbox[0].Read {
				t.Errorf("%s: expected one unread entry for message, got %+v", r, inbox)
			}
		}
	})

	tests := []struct {
		name string
		req  SendRequest
		want error
	}{
		{
			name: "malformed sender",
			req:  SendRequest{SenderEmail: "alice", RecipientEmails: []string{"bob@example.com"}, Content: "x"},
			want: ErrInvalidEmailFormat,
		},
		{
			name: "no recipients",
			req:  SendRequest{SenderEmail: "alice@example.com", Content: "x"},
			want: ErrEmptyRecipients,
		},
		{
			name: "malformed recipient",
			req:  SendRequest{SenderEmail: "alice@example.com", RecipientEmails: []string{"bob@example.com", "nope"}, Content: "x"},
			want: ErrInvalidEmailFormat,
		},
		{
			name: "duplicate recipient",
			req:  SendRequest{SenderEmail: "alice@example.com", RecipientEmails: []string{"bob@example.com", "BOB@example.com"}, Content: "x"},
			want: ErrDuplicateRecipient,
		},
		{
			name: "empty content",
			req:  SendRequest{SenderEmail: "alice@example.com", RecipientEmails: []string{"bob@example.com"}, Content: "  "},
			want: ErrEmptyContent,
		},
		{
			name: "unknown sender",
			req:  SendRequest{SenderEmail: "ghost@example.com", RecipientEmails: []string{"bob@example.com"}, Content: "x"},
			want: ErrUnknownSender,
		},
		{
			name: "unknown recipient",
			req:  SendRequest{SenderEmail: "alice@example.com", RecipientEmails: []string{"bob@example.com", "ghost@example.com"}, Content: "x"},
			want: ErrUnknownRecipient,
		},
		{
			name: "format checked before existence",
			req:  SendRequest{SenderEmail: "ghost@example.com", RecipientEmails: []string{"bad"}, Content: "x"},
			want: ErrInvalidEmailFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := svc.SystemStats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			_, err = svc.SendMessage(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			after, err := svc.SystemStats(ctx)
			if err != nil {
				t.Fatalf("stats: %v", err)
			}
			if after.TotalMessages != before.TotalMessages || after.TotalUnreadMessages != before.TotalUnreadMessages {
				t.Errorf("failed send left state behind: before=%+v after=%+v", before, after)
			}
		})
	}

	t.Run("unknown recipient names the address", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, SendRequest{
			SenderEmail:     "alice@example.com",
			RecipientEmails: []string{"bob@example.com", "Ghost@example.com", "other@example.com"},
			Content:         "x",
		})
		re, ok := IsRecipientError(err)
		if !ok {
			t.Fatalf("expected RecipientError, got %v", err)
		}
		if re.Email != "ghost@example.com" {
			t.Errorf("expected first unknown address, got %q", re.Email)
		}
	})
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustCreateUser(t, svc, "alice@example.com", "Alice")
	mustCreateUser(t, svc, "bob@example.com", "Bob")
	mustCreateUser(t, svc, "carol@example.com", "Carol")
	msg := mustSend(t, svc, "alice@example.com", []string{"bob@example.com", "carol@example.com"}, "", "hello")

	t.Run("first call succeeds", func(t *testing.T) {
		if err := svc.MarkRead(ctx, msg.ID, "BOB@example.com"); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		inbox, err := svc.InboxMessages(ctx, "bob@example.com")
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if !inbox[0].Read || inbox[0].ReadAt == nil {
			t.Errorf("expected read with timestamp, got %+v", inbox[0])
		}
	})

	t.Run("second call is already read", func(t *testing.T) {
		before, err := svc.InboxMessages(ctx, "bob@example.com")
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if err := svc.MarkRead(ctx, msg.ID, "bob@example.com"); !errors.Is(err, ErrAlreadyRead) {
			t.Errorf("expected ErrAlreadyRead, got %v", err)
		}
		after, err := svc.InboxMessages(ctx, "bob@example.com")
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if !after[0].Read || after[0].ReadAt == nil || !after[0].ReadAt.Equal(*before[0].ReadAt) {
			t.Errorf("read state changed: before %v, after %v", before[0].ReadAt, after[0].ReadAt)
		}
	})

	t.Run("other recipients are independent", func(t *testing.T) {
		unread, err := svc.UnreadMessages(ctx, "carol@example.com")
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		if len(unread) != 1 || unread[0].ID != msg.ID {
			t.Errorf("expected carol's copy still unread, got %+v", unread)
		}
	})

	t.Run("sender is not a recipient", func(t *testing.T) {
		if err := svc.MarkRead(ctx, msg.ID, "alice@example.com"); !errors.Is(err, ErrNotARecipient) {
			t.Errorf("expected ErrNotARecipient, got %v", err)
		}
	})

	t.Run("unknown message", func(t *testing.T) {
		if err := svc.MarkRead(ctx, "00000000-0000-0000-0000-000000000000", "bob@example.com"); !errors.Is(err, ErrNotARecipient) {
			t.Errorf("expected ErrNotARecipient, got %v", err)
		}
		if err := svc.MarkRead(ctx, "garbage", "bob@example.com"); !errors.Is(err, ErrNotARecipient) {
			t.Errorf("expected ErrNotARecipient for malformed id, got %v", err)
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		if err := svc.MarkRead(ctx, msg.ID, "ghost@example.com"); !errors.Is(err, ErrUnknownRecipient) {
			t.Errorf("expected ErrUnknownRecipient, got %v", err)
		}
	})
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustCreateUser(t, svc, "alice@example.com", "Alice")
	mustCreateUser(t, svc, "bob@example.com", "Bob")
	mustCreateUser(t, svc, "carol@example.com", "Carol")

	m1 := mustSend(t, svc, "alice@example.com", []string{"bob@example.com", "carol@example.com"}, "first", "one")
	m2 := mustSend(t, svc, "bob@example.com", []string{"alice@example.com"}, "", "two")
	m3 := mustSend(t, svc, "alice@example.com", []string{"carol@example.com"}, "third", "three")

	t.Run("sent view", func(t *testing.T) {
		sent, err := svc.SentMessages(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("sent: %v", err)
		}
		if len(sent) != 2 || sent[0].ID != m1.ID || sent[1].ID != m3.ID {
			t.Fatalf("unexpected sent view: %+v", sent)
		}
		if got := sent[0].RecipientEmails; len(got) != 2 || got[0] != "bob@example.com" || got[1] != "carol@example.com" {
			t.Errorf("unexpected reconstructed recipients %v", got)
		}
		if _, err := svc.SentMessages(ctx, "ghost@example.com"); !errors.Is(err, ErrUnknownSender) {
			t.Errorf("expected ErrUnknownSender, got %v", err)
		}
	})

	t.Run("inbox and unread", func(t *testing.T) {
		if err := svc.MarkRead(ctx, m1.ID, "carol@example.com"); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		inbox, err := svc.InboxMessages(ctx, "carol@example.com")
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox) != 2 {
			t.Fatalf("expected 2 inbox entries, got %d", len(inbox))
		}
		unread, err := svc.UnreadMessages(ctx, "carol@example.com")
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		if len(unread) != 1 || unread[0].ID != m3.ID {
			t.Errorf("expected only m3 unread, got %+v", unread)
		}
		for _, e := range unread {
			if e.Read {
				t.Errorf("unread view contains read entry %s", e.ID)
			}
		}
		if _, err := svc.InboxMessages(ctx, "ghost@example.com"); !errors.Is(err, ErrUnknownRecipient) {
			t.Errorf("expected ErrUnknownRecipient, got %v", err)
		}
	})

	t.Run("detail", func(t *testing.T) {
		d, err := svc.MessageDetail(ctx, m1.ID)
		if err != nil {
			t.Fatalf("detail: %v", err)
		}
		if d.SenderEmail != "alice@example.com" || d.Subject != "first" || d.Content != "one" {
			t.Errorf("unexpected detail %+v", d)
		}
		if d.TotalRecipients != 2 || d.ReadCount != 1 || d.UnreadCount != 1 {
			t.Errorf("unexpected counts %+v", d)
		}
		if d.Recipients[0].Email != "bob@example.com" || d.Recipients[0].Read {
			t.Errorf("unexpected first recipient %+v", d.Recipients[0])
		}
		if d.Recipients[1].Email != "carol@example.com" || !d.Recipients[1].Read || d.Recipients[1].ReadAt == nil {
			t.Errorf("unexpected second recipient %+v", d.Recipients[1])
		}
		if _, err := svc.MessageDetail(ctx, "not-an-id"); !errors.Is(err, ErrUnknownMessage) {
			t.Errorf("expected ErrUnknownMessage, got %v", err)
		}
	})

	t.Run("combined view is newest first", func(t *testing.T) {
		views, err := svc.Messages(ctx, "alice@example.com")
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(views) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(views))
		}
		want := []struct {
			id   string
			role Role
		}{{m3.ID, RoleSent}, {m2.ID, RoleReceived}, {m1.ID, RoleSent}}
		for i, w := range want {
			if views[i].ID != w.id || views[i].Role != w.role {
				t.Errorf("entry %d: expected %s/%s, got %s/%s", i, w.id, w.role, views[i].ID, views[i].Role)
			}
		}
		if _, err := svc.Messages(ctx, "ghost@example.com"); !errors.Is(err, ErrUnknownUser) {
			t.Errorf("expected ErrUnknownUser, got %v", err)
		}
	})

	t.Run("all messages", func(t *testing.T) {
		all, err := svc.AllMessages(ctx)
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		// m1: alice sent + bob, carol received; m2: bob sent + alice received; m3: alice sent + carol received.
		if len(all) != 7 {
			t.Fatalf("expected 7 entries, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].Timestamp.After(all[i-1].Timestamp) {
				t.Errorf("entries %d and %d out of order", i-1, i)
			}
		}
		if all[0].Owner == "" {
			t.Error("expected owner on merged entries")
		}
	})
}

// TestScenarioFanOutAndRead walks through a full send and read cycle.
func TestScenarioFanOutAndRead(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustCreateUser(t, svc, "a@x.io", "A")
	mustCreateUser(t, svc, "b@x.io", "B")
	mustCreateUser(t, svc, "c@x.io", "C")

	msg := mustSend(t, svc, "a@x.io", []string{"b@x.io", "c@x.io"}, "Hi", "Hello")

	if err := svc.MarkRead(ctx, msg.ID, "b@x.io"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unreadB, _ := svc.UnreadMessages(ctx, "b@x.io")
	unreadC, _ := svc.UnreadMessages(ctx, "c@x.io")
	if len(unreadB) != 0 || len(unreadC) != 1 {
		t.Errorf("expected b=0 c=1 unread, got b=%d c=%d", len(unreadB), len(unreadC))
	}

	if err := svc.MarkRead(ctx, msg.ID, "b@x.io"); !errors.Is(err, ErrAlreadyRead) {
		t.Errorf("expected ErrAlreadyRead, got %v", err)
	}
}

// TestScenarioRejectedSendLeavesNoState checks that an unknown recipient
// aborts the whole send.
func TestScenarioRejectedSendLeavesNoState(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	mustCreateUser(t, svc, "a@x.io", "A")
	mustCreateUser(t, svc, "b@x.io", "B")

	_, err := svc.SendMessage(ctx, SendRequest{
		SenderEmail:     "a@x.io",
		RecipientEmails: []string{"b@x.io", "ghost@x.io"},
		Content:         "Hello",
	})
	if !errors.Is(err, ErrUnknownRecipient) {
		t.Fatalf("expected ErrUnknownRecipient, got %v", err)
	}

	inbox, _ := svc.InboxMessages(ctx, "b@x.io")
	sent, _ := svc.SentMessages(ctx, "a@x.io")
	if len(inbox) != 0 || len(sent) != 0 {
		t.Errorf("expected no state, got inbox=%d sent=%d", len(inbox), len(sent))
	}
}
