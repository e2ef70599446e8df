// Package retry runs backend operations with exponential backoff.
//
// It is used when bringing up stores and brokers whose endpoints may not be
// reachable yet, such as a database container that is still starting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Sentinel errors reported through *Error.
var (
	ErrExhausted = errors.New("retry: attempts exhausted")
	ErrPermanent = errors.New("retry: permanent failure")
	ErrCanceled  = errors.New("retry: canceled")
)

// Policy controls how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 mean a single try.
	Attempts int
	// Initial is the wait before the second try.
	Initial time.Duration
	// Max caps a single wait.
	Max time.Duration
	// Multiplier grows the wait after each try.
	Multiplier float64
	// Jitter randomizes each wait by +/- this fraction, clamped to [0,1].
	Jitter float64
	// Retryable reports whether err is worth another try. Nil retries
	// everything except errors marked with Permanent.
	Retryable func(err error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy suits connecting to a local database or broker.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   5,
		Initial:    200 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = 200 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	p.Jitter = min(max(p.Jitter, 0), 1)
	if p.Retryable == nil {
		p.Retryable = func(err error) bool { return !IsPermanent(err) }
	}
	return p
}

// wait returns the delay after the given zero-based try.
func (p Policy) wait(try int) time.Duration {
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(try))
	d = math.Min(d, float64(p.Max))
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(d)
}

// Error describes why Do gave up.
type Error struct {
	Attempts int
	Last     error
	Reason   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Reason, e.Attempts, e.Last)
}

func (e *Error) Unwrap() []error { return []error{e.Reason, e.Last} }

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// runs out of attempts, or ctx is done.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.normalized()

	var last error
	for try := 0; try < p.Attempts; try++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			return &Error{Attempts: try, Last: last, Reason: ErrCanceled}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !p.Retryable(last) {
			return &Error{Attempts: try + 1, Last: last, Reason: ErrPermanent}
		}
		if try == p.Attempts-1 {
			break
		}

		d := p.wait(try)
		if p.OnRetry != nil {
			p.OnRetry(try+1, d, last)
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return &Error{Attempts: try + 1, Last: last, Reason: ErrCanceled}
		case <-t.C:
		}
	}
	return &Error{Attempts: p.Attempts, Last: last, Reason: ErrExhausted}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err so the default policy stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}
