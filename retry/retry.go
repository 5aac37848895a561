// Package retry executes operations with exponential backoff.
//
// Attempts are numbered from 1; an operation runs at most
// MaxRetries+1 times. The retry predicate decides per error and per
// attempt whether another try is worth it, and backoff delays grow
// geometrically with optional jitter to spread retry storms across
// clients.
package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/voyahq/tripwire/faults"
)

// Sleeper abstracts time-based waiting for deterministic testing.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper uses actual time.
type RealSleeper struct{}

// Sleep waits for d or until ctx is cancelled.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Config holds retry policy. Zero values are replaced by defaults at
// execution time; a constructed Config is never mutated.
type Config struct {
	MaxRetries    int           // retries after the first attempt (0 = single attempt)
	InitialDelay  time.Duration // delay before the first retry
	MaxDelay      time.Duration // backoff ceiling
	BackoffFactor float64       // geometric growth factor, > 1
	Jitter        bool          // perturb delays by up to ±25%

	// RetryIf decides whether err on the given attempt (1-based) is
	// worth another try. Nil means faults.IsTransient.
	RetryIf func(err error, attempt int) bool

	// OnRetry runs before each backoff delay, for logging/metrics.
	// Never invoked for the final failure.
	OnRetry func(err error, attempt int)

	// Sleeper overrides delay timing, for tests. Nil means real time.
	Sleeper Sleeper
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	if c.RetryIf == nil {
		c.RetryIf = func(err error, _ int) bool { return faults.IsTransient(err) }
	}
	if c.Sleeper == nil {
		c.Sleeper = RealSleeper{}
	}
	return c
}

// Do executes op with retries according to cfg. On success the result
// is returned immediately. On terminal failure the error from the last
// attempt is returned unchanged, so callers can match it with
// errors.Is/As.
func Do[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		// Final allowed attempt: stop without consulting the predicate.
		if attempt == cfg.MaxRetries+1 {
			break
		}

		if !cfg.RetryIf(err, attempt) {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(err, attempt)
		}

		if err := cfg.Sleeper.Sleep(ctx, Backoff(cfg, attempt, lastErr)); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// Backoff computes the delay after the given failed attempt (1-based):
// min(InitialDelay × BackoffFactor^(attempt−1), MaxDelay), perturbed by
// up to ±25% when jitter is enabled. An upstream Retry-After hint on
// err overrides the computed delay.
func Backoff(cfg Config, attempt int, err error) time.Duration {
	if retryAfter, ok := faults.RetryAfter(err); ok {
		return retryAfter
	}

	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		delay += jitter(delay)
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// jitter returns a uniform offset in [-delay/4, +delay/4] using
// crypto/rand. On rand failure the offset is zero.
func jitter(delay float64) float64 {
	span := int64(delay / 4)
	if span <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span*2))
	if err != nil {
		return 0
	}
	return float64(n.Int64() - span)
}
