// Package tripwire hardens calls to unreliable upstream services.
//
// tripwire wraps any asynchronous operation with retry, circuit
// breaking, rate limiting, and in-flight deduplication. It was built
// for travel-provider and payment APIs (flight search, hotel
// availability, charges) where upstreams rate-limit aggressively and
// fail often, but nothing in it is travel-specific.
//
// # Quick Start
//
//	guard := tripwire.New(
//	    tripwire.WithRetry(retry.Config{MaxRetries: 3}),
//	)
//
//	offers, err := tripwire.Do(ctx, guard, "flight-search", func(ctx context.Context) ([]Offer, error) {
//	    return searchFlights(ctx, query)
//	})
//
// # Individual Wrappers
//
// Each resilience concern is usable on its own:
//
//	import "github.com/voyahq/tripwire/retry"
//	result, err := retry.Do(ctx, retry.DefaultConfig(), op)
//
//	import "github.com/voyahq/tripwire/breaker"
//	b := breaker.New(breaker.DefaultConfig())
//	result, err := breaker.Do(b, op)
//
//	import "github.com/voyahq/tripwire/ratelimit"
//	l := ratelimit.New(ratelimit.DefaultConfig())
//	err := l.Wait(ctx, "hotelbeds")
//
// # Features
//
//   - Retry with exponential backoff and crypto jitter
//   - Lazy circuit breaker per operation key (no timer goroutines)
//   - Token-bucket rate limiting with golang.org/x/time/rate
//   - Duplicate in-flight calls rejected, never queued
//   - Typed error classification instead of message sniffing
//   - Terminal failures reported once through a pluggable sink
//   - Structured logging with slog
//   - Context cancellation honored at every suspension point
package tripwire
