package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	errDown := errors.New("connection refused")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		var retries []int
		p := fastPolicy(5)
		p.OnRetry = func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }

		err := Do(ctx, p, func(context.Context) error {
			calls++
			if calls < 3 {
				return errDown
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
		if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
			t.Errorf("unexpected retry callbacks %v", retries)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy(3), func(context.Context) error {
			calls++
			return errDown
		})
		if !errors.Is(err, ErrExhausted) || !errors.Is(err, errDown) {
			t.Fatalf("expected exhausted wrapping cause, got %v", err)
		}
		var re *Error
		if !errors.As(err, &re) || re.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %+v", re)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy(5), func(context.Context) error {
			calls++
			return Permanent(errDown)
		})
		if !errors.Is(err, ErrPermanent) || !errors.Is(err, errDown) {
			t.Fatalf("expected permanent error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("custom classifier", func(t *testing.T) {
		p := fastPolicy(5)
		p.Retryable = func(err error) bool { return !errors.Is(err, errDown) }
		err := Do(ctx, p, func(context.Context) error { return errDown })
		if !errors.Is(err, ErrPermanent) {
			t.Errorf("expected classifier to stop retries, got %v", err)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Do(cctx, fastPolicy(3), func(context.Context) error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("canceled while waiting", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		p := Policy{Attempts: 3, Initial: time.Hour, Max: time.Hour}
		err := Do(cctx, p, func(context.Context) error {
			cancel()
			return errDown
		})
		if !errors.Is(err, ErrCanceled) {
			t.Errorf("expected ErrCanceled, got %v", err)
		}
	})
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("not yet")
		}
		return "ready", nil
	})
	if err != nil || v != "ready" {
		t.Errorf("expected ready, got %q %v", v, err)
	}
}

func TestPolicyWait(t *testing.T) {
	p := Policy{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}.normalized()
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		if got := p.wait(i); got != w*time.Millisecond {
			t.Errorf("try %d: expected %v, got %v", i, w*time.Millisecond, got)
		}
	}

	p.Jitter = 0.5
	for i := 0; i < 20; i++ {
		if got := p.wait(0); got < 5*time.Millisecond || got > 15*time.Millisecond {
			t.Errorf("jittered wait out of range: %v", got)
		}
	}
}

func TestNormalized(t *testing.T) {
	p := Policy{Attempts: -1, Jitter: 3}.normalized()
	if p.Attempts != 1 || p.Jitter != 1 || p.Retryable == nil {
		t.Errorf("unexpected normalized policy %+v", p)
	}
	if IsPermanent(errors.New("x")) || !IsPermanent(Permanent(errors.New("x"))) {
		t.Error("IsPermanent mismatch")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
