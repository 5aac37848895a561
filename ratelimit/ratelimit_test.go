package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyahq/tripwire/ratelimit"
)

func TestLimiter_BurstPassesImmediately(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RPS: 10, Burst: 10})

	allowed := 0
	for _i := 0; _i < 10; _i++ {
		if l.Allow("") {
			allowed++
		}
	}

	assert.Equal(t, 10, allowed, "a full burst passes without waiting")
	assert.False(t, l.Allow(""), "the bucket is empty after the burst")
}

func TestLimiter_ThrottlesSustainedLoad(t *testing.T) {
	// Scaled-down version of the 10 rps / 20 calls property: with the
	// bucket capacity covering half the calls, the rest must wait for
	// refill, so total elapsed time is at least capacity/rate.
	l := ratelimit.New(ratelimit.Config{RPS: 100, Burst: 10})
	ctx := context.Background()

	start := time.Now()
	for _i := 0; _i < 20; _i++ {
		require.NoError(t, l.Wait(ctx, ""))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond,
		"10 calls beyond the burst at 100 rps need ~100ms of refill")
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RPS: 1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "")
	assert.Error(t, err, "empty bucket plus short deadline cannot wait out the refill")
}

func TestLimiter_PerKeyIsolation(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RPS: 1000, Burst: 1000, KeyRPS: 1, KeyBurst: 1})

	assert.True(t, l.Allow("amadeus"))
	assert.False(t, l.Allow("amadeus"), "key bucket exhausted")
	assert.True(t, l.Allow("hotelbeds"), "other keys are unaffected")
}

func TestLimiter_EvictsOldestKeyAtCapacity(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{RPS: 1000, Burst: 1000, KeyRPS: 1, KeyBurst: 1, MaxKeyLimiters: 2})

	l.Allow("a")
	time.Sleep(time.Millisecond)
	l.Allow("b")
	time.Sleep(time.Millisecond)
	l.Allow("c")

	assert.Equal(t, 2, l.KeyCount(), "map stays at capacity")
	assert.True(t, l.Allow("a"), "evicted key gets a fresh bucket")
}

func TestLimiter_DefaultsApplied(t *testing.T) {
	l := ratelimit.New(ratelimit.Config{})

	// Default 10 rps with capacity 10.
	allowed := 0
	for _i := 0; _i < 11; _i++ {
		if l.Allow("") {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)
}
