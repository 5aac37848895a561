package tripwire

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voyahq/tripwire/breaker"
	"github.com/voyahq/tripwire/faults"
	"github.com/voyahq/tripwire/ratelimit"
	"github.com/voyahq/tripwire/retry"
)

// Guard composes retry, circuit breaking, rate limiting, and in-flight
// deduplication around arbitrary operations. All state is owned by the
// Guard instance: the in-flight key set, one circuit breaker per
// operation key, and a shared rate limiter. Safe for concurrent use.
type Guard struct {
	retryCfg   retry.Config
	breakerCfg breaker.Config
	limiter    *ratelimit.Limiter
	reporter   faults.Reporter
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	breakers map[string]*breaker.Breaker
}

// Option configures the Guard.
type Option func(*Guard)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(g *Guard) {
		g.retryCfg = cfg
	}
}

// WithBreaker sets the circuit breaker tuning applied to every
// operation key.
func WithBreaker(cfg breaker.Config) Option {
	return func(g *Guard) {
		g.breakerCfg = cfg
	}
}

// WithRateLimit sets the rate limiter configuration.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(g *Guard) {
		g.limiter = ratelimit.New(cfg)
	}
}

// WithLimiter shares an existing limiter between guards.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(g *Guard) {
		g.limiter = l
	}
}

// WithReporter sets the terminal-failure sink.
func WithReporter(r faults.Reporter) Option {
	return func(g *Guard) {
		g.reporter = r
	}
}

// WithSleeper sets a custom sleeper for backoff timing (useful for testing).
func WithSleeper(s retry.Sleeper) Option {
	return func(g *Guard) {
		g.retryCfg.Sleeper = s
	}
}

// New creates a Guard with the given options.
func New(opts ...Option) *Guard {
	g := &Guard{
		retryCfg:   retry.DefaultConfig(),
		breakerCfg: breaker.DefaultConfig(),
		inflight:   make(map[string]struct{}),
		breakers:   make(map[string]*breaker.Breaker),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.limiter == nil {
		g.limiter = ratelimit.New(ratelimit.DefaultConfig())
	}
	if g.reporter == nil {
		g.reporter = &faults.LogReporter{Logger: g.logger}
	}

	return g
}

// InFlight reports whether an operation with the given key is currently
// being retried. Useful for monitoring and testing.
func (g *Guard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[key]
	return ok
}

// begin registers key as in flight. A key may be registered at most
// once; the duplicate call is rejected, not queued.
func (g *Guard) begin(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.inflight[key]; ok {
		return faults.New(faults.Conflict, key, faults.ErrInFlight)
	}
	g.inflight[key] = struct{}{}
	return nil
}

// end clears the in-flight marker on a terminal outcome.
func (g *Guard) end(key string) {
	g.mu.Lock()
	delete(g.inflight, key)
	g.mu.Unlock()
}

// breakerFor returns the circuit breaker for key, creating it on first
// use. Every key gets its own failure history.
func (g *Guard) breakerFor(key string) *breaker.Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[key]; ok {
		return b
	}

	cfg := g.breakerCfg
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to breaker.State) {
		g.logger.Info("circuit breaker state changed",
			"key", key,
			"from", from.String(),
			"to", to.String(),
		)
		if userHook != nil {
			userHook(from, to)
		}
	}

	b := breaker.New(cfg)
	g.breakers[key] = b
	return b
}

// Do runs op through the full resilience pipeline: in-flight dedup,
// then a retry loop where every attempt waits for a rate-limit token,
// passes the circuit breaker, and finally invokes op.
//
// On success the result is returned immediately and no further attempts
// occur. On terminal failure the error from the last attempt is
// reported once through the Guard's Reporter and returned to the
// caller unchanged. A second call with a key that is still in flight
// fails immediately with faults.ErrInFlight without invoking op.
func Do[T any](ctx context.Context, g *Guard, key string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	// An empty key carries no identity, so there is nothing to dedup.
	if key != "" {
		if err := g.begin(key); err != nil {
			g.report(ctx, key, err, 0)
			return zero, err
		}
		defer g.end(key)
	}

	b := g.breakerFor(key)

	attempts := 0
	attempt := func(ctx context.Context) (T, error) {
		if err := g.limiter.Wait(ctx, key); err != nil {
			return zero, err
		}
		if err := b.Allow(); err != nil {
			// Not a failure of the operation itself; op is never invoked.
			return zero, faults.New(faults.Unavailable, key, err)
		}
		attempts++
		result, err := op(ctx)
		if err != nil {
			b.Failure()
			return zero, err
		}
		b.Success()
		return result, nil
	}

	cfg := g.retryCfg
	userOnRetry := cfg.OnRetry
	cfg.OnRetry = func(err error, n int) {
		g.logger.Warn("retrying operation",
			"key", key,
			"attempt", n,
			"class", faults.Classify(err).String(),
			"error", err,
		)
		if userOnRetry != nil {
			userOnRetry(err, n)
		}
	}

	result, err := retry.Do(ctx, cfg, attempt)
	if err != nil {
		g.report(ctx, key, err, attempts)
		return zero, err
	}
	return result, nil
}

// report surfaces a terminal failure through the reporter exactly once.
func (g *Guard) report(ctx context.Context, key string, err error, attempts int) {
	g.reporter.Report(ctx, faults.Notice{
		Op:       key,
		Err:      err,
		Message:  faults.UserMessage(err),
		Severity: faults.SeverityFor(err),
		Attempts: attempts,
	})
}
