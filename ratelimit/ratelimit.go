// Package ratelimit caps call rates with token buckets.
//
// Built on golang.org/x/time/rate: tokens accumulate continuously at
// the configured rate up to the bucket capacity, so short bursts pass
// immediately while the long-run rate stays at the ceiling. A Limiter
// carries one shared bucket plus lazily-created per-key buckets, so
// independent upstream endpoints do not starve each other.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the shared requests-per-second ceiling. Bucket capacity
	// equals the rate unless Burst overrides it. Default 10.
	RPS   float64
	Burst int

	// KeyRPS limits each key independently. 0 disables per-key limits.
	KeyRPS   float64
	KeyBurst int

	// MaxKeyLimiters caps the per-key map to bound memory. Default 1000.
	MaxKeyLimiters int
}

// DefaultConfig returns production defaults: 10 requests per second
// with a burst capacity of 10, no per-key limits.
func DefaultConfig() Config {
	return Config{RPS: 10, Burst: 10}
}

// Limiter rate-limits calls globally and optionally per key.
// Safe for concurrent use.
type Limiter struct {
	global *rate.Limiter

	keyRPS   float64
	keyBurst int
	maxKeys  int

	mu     sync.RWMutex
	perKey map[string]*keyLimiter
}

// keyLimiter tracks last use with an atomic so the read path never
// takes the write lock.
type keyLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // UnixNano
}

// New creates a limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RPS)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.KeyBurst <= 0 && cfg.KeyRPS > 0 {
		cfg.KeyBurst = int(cfg.KeyRPS)
		if cfg.KeyBurst < 1 {
			cfg.KeyBurst = 1
		}
	}
	if cfg.MaxKeyLimiters <= 0 {
		cfg.MaxKeyLimiters = 1000
	}

	return &Limiter{
		global:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		keyRPS:   cfg.KeyRPS,
		keyBurst: cfg.KeyBurst,
		maxKeys:  cfg.MaxKeyLimiters,
		perKey:   make(map[string]*keyLimiter),
	}
}

// Wait blocks until both the shared and the per-key bucket grant a
// token, or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.keyRPS > 0 && key != "" {
		if err := l.get(key).Wait(ctx); err != nil {
			return err
		}
	}
	return l.global.Wait(ctx)
}

// Allow reports whether a call may proceed right now, consuming tokens
// if so.
func (l *Limiter) Allow(key string) bool {
	if l.keyRPS > 0 && key != "" && !l.get(key).Allow() {
		return false
	}
	return l.global.Allow()
}

// Tokens returns the shared bucket's current token count, for
// monitoring and tests.
func (l *Limiter) Tokens() float64 {
	return l.global.Tokens()
}

// KeyCount returns the number of live per-key buckets.
func (l *Limiter) KeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.perKey)
}

func (l *Limiter) get(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	l.mu.RLock()
	entry, ok := l.perKey[key]
	l.mu.RUnlock()
	if ok {
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok = l.perKey[key]; ok {
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	// Evict the least recently used bucket at capacity.
	if len(l.perKey) >= l.maxKeys {
		var oldestKey string
		oldest := now
		for k, e := range l.perKey {
			if t := e.lastUsed.Load(); t < oldest {
				oldest = t
				oldestKey = k
			}
		}
		if oldestKey != "" {
			delete(l.perKey, oldestKey)
		}
	}

	entry = &keyLimiter{limiter: rate.NewLimiter(rate.Limit(l.keyRPS), l.keyBurst)}
	entry.lastUsed.Store(now)
	l.perKey[key] = entry
	return entry.limiter
}
