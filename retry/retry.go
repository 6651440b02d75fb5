// Package retry re-invokes a fallible operation under a bounded-attempt policy
// with exponential backoff. Failures carrying one of the policy's terminal
// HTTP status codes stop the loop on first occurrence.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy configures a retry loop.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first one.
	MaxAttempts int

	// TerminalStatusCodes are response codes for which retrying cannot succeed.
	TerminalStatusCodes []int

	// BaseDelay is the wait before the second attempt; it doubles on every retry.
	BaseDelay time.Duration

	// MaxDelay caps the wait between two attempts.
	MaxDelay time.Duration

	// OnRetry is called with the error of the attempt that just failed and its
	// 1-based number, right before the next attempt starts.
	OnRetry func(err error, attempt int)
}

// DefaultPolicy returns 5 attempts, exponential backoff from 500ms capped at 10s,
// and 400 / 413 as terminal status codes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         5,
		TerminalStatusCodes: []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge},
		BaseDelay:           500 * time.Millisecond,
		MaxDelay:            10 * time.Second,
	}
}

// Validate ...
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts should be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay should be positive, got %s", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay (%s) should not be less than base delay (%s)", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

func (p Policy) backoff() goretry.Backoff {
	return goretry.WithCappedDuration(p.MaxDelay, goretry.NewExponential(p.BaseDelay))
}

// StatusCoder is implemented by errors that originate from an HTTP response.
type StatusCoder interface {
	HTTPStatusCode() int
}

// IsTerminal reports whether err should not be retried under the policy.
func IsTerminal(p Policy, err error) bool {
	var coder StatusCoder
	if !errors.As(err, &coder) {
		return false
	}

	code := coder.HTTPStatusCode()
	for _, terminal := range p.TerminalStatusCodes {
		if code == terminal {
			return true
		}
	}
	return false
}

// Do runs op until it succeeds, fails with a terminal error or the attempts are
// exhausted. The final error is returned unchanged.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	backoff := goretry.WithMaxRetries(uint64(p.MaxAttempts-1), p.backoff())

	var (
		attempt int
		lastErr error
	)
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 && p.OnRetry != nil {
			p.OnRetry(lastErr, attempt)
		}
		attempt++

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsTerminal(p, err) || ctx.Err() != nil {
			return err
		}
		return goretry.RetryableError(err)
	})
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		value, err := op(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}
