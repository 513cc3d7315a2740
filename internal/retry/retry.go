// Package retry runs provider calls under a reusable backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"github.com/kailas-cloud/supportgraph/internal/domain"
)

// Class is the retry verdict for an error.
type Class int

const (
	// Permanent errors are returned immediately.
	Permanent Class = iota
	// Transient errors are retried with the base backoff.
	Transient
	// RateLimited errors are retried with the extra rate-limit multiplier.
	RateLimited
)

// Classifier decides whether an error is worth another attempt.
type Classifier func(err error) Class

// Policy describes exponential backoff with a jittered cap.
type Policy struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	RateLimitMultiplier float64
	// AttemptTimeout bounds each attempt; zero leaves the parent deadline.
	AttemptTimeout time.Duration
	Classify       Classifier
	// OnRetry is called before sleeping; attempt is 1-based.
	OnRetry func(attempt int, err error, delay time.Duration)

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// DefaultPolicy returns 5 attempts, 500ms doubling delay capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         5,
		BaseDelay:           500 * time.Millisecond,
		MaxDelay:            10 * time.Second,
		Multiplier:          2,
		RateLimitMultiplier: 2,
		Classify:            DefaultClassifier,
	}
}

// Do runs op until it succeeds, fails permanently or attempts run out.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		class := classify(err)
		if class == Permanent || attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		}

		delay := p.Backoff(attempt, class)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := p.wait(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
		}
	}
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(actx)
}

// Backoff returns the jittered delay after the given 1-based attempt.
func (p Policy) Backoff(attempt int, class Class) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if class == RateLimited && p.RateLimitMultiplier > 1 {
		d *= p.RateLimitMultiplier
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	r := p.rand
	if r == nil {
		r = rand.Float64
	}
	// equal jitter: half fixed, half random
	return time.Duration(d/2 + r()*d/2)
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultClassifier treats rate limits, provider outages, timeouts and
// network timeouts as retryable. Everything else is permanent.
func DefaultClassifier(err error) Class {
	switch {
	case err == nil:
		return Permanent
	case errors.Is(err, domain.ErrRateLimited):
		return RateLimited
	case errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return Transient
	case errors.Is(err, context.Canceled):
		return Permanent
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient
	}
	return Permanent
}
