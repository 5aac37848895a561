package provider_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyahq/tripwire/faults"
	"github.com/voyahq/tripwire/internal/testutil"
	"github.com/voyahq/tripwire/provider"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, sleeper *testutil.FakeSleeper) *provider.Client {
	t.Helper()

	cfg := provider.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = provider.Secret(testutil.TestAPIKey)
	cfg.RPS = 1000
	cfg.Burst = 1000
	cfg.EndpointRPS = 0 // shared bucket only in tests

	client, err := provider.New(cfg, provider.WithLogger(quietLogger()), provider.WithSleeper(sleeper))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_RequiresConfiguration(t *testing.T) {
	cfg := provider.DefaultConfig()
	_, err := provider.New(cfg)
	assert.ErrorIs(t, err, provider.ErrMissingBaseURL)

	cfg.BaseURL = "https://api.example.com"
	_, err = provider.New(cfg)
	assert.ErrorIs(t, err, provider.ErrMissingAPIKey)
}

func TestGet_DecodesResponse(t *testing.T) {
	server := testutil.NewUpstream(t)
	server.On("/v1/offers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testutil.TestAPIKey, r.Header.Get("Authorization"))
		testutil.ReplyJSON(w, map[string]any{"count": 2})
	})

	client := newTestClient(t, server.BaseURL(), &testutil.FakeSleeper{})

	var out struct {
		Count int `json:"count"`
	}
	err := client.Get(context.Background(), "/v1/offers", nil, &out)

	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
}

func TestPost_SendsJSONPayload(t *testing.T) {
	server := testutil.NewUpstream(t)
	server.On("/v1/bookings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AMS", body["destination"])
		testutil.ReplyJSON(w, map[string]any{"id": "bk_123"})
	})

	client := newTestClient(t, server.BaseURL(), &testutil.FakeSleeper{})

	var out struct {
		ID string `json:"id"`
	}
	err := client.Post(context.Background(), "/v1/bookings", map[string]string{"destination": "AMS"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "bk_123", out.ID)
}

func TestCall_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32

	server := testutil.NewUpstream(t)
	server.On("/v1/offers", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			testutil.ReplyServerError(w, 502, "bad gateway")
			return
		}
		testutil.ReplyJSON(w, map[string]any{})
	})

	sleeper := &testutil.FakeSleeper{}
	client := newTestClient(t, server.BaseURL(), sleeper)

	err := client.Get(context.Background(), "/v1/offers", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 1, sleeper.CallCount())
}

func TestCall_DoesNotRetryValidationErrors(t *testing.T) {
	server := testutil.NewUpstream(t)
	server.On("/v1/bookings", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyError(w, 400, "INVALID_DATE", "check-out before check-in")
	})

	client := newTestClient(t, server.BaseURL(), &testutil.FakeSleeper{})

	err := client.Post(context.Background(), "/v1/bookings", map[string]string{}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, server.RequestCount(), "4xx surfaces on first failure")

	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "INVALID_DATE", apiErr.Code)
	assert.Equal(t, faults.Validation, faults.Classify(err))
}

func TestCall_HonorsRetryAfter(t *testing.T) {
	var attempts atomic.Int32

	server := testutil.NewUpstream(t)
	server.On("/v1/offers", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			testutil.ReplyRateLimited(w, 2)
			return
		}
		testutil.ReplyJSON(w, map[string]any{})
	})

	sleeper := &testutil.FakeSleeper{}
	client := newTestClient(t, server.BaseURL(), sleeper)

	err := client.Get(context.Background(), "/v1/offers", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	require.Equal(t, 1, sleeper.CallCount())
	assert.Equal(t, 2*time.Second, sleeper.CallAt(0), "429 backoff uses the upstream hint")
}

func TestCall_BreakerOpensOnConsecutiveServerErrors(t *testing.T) {
	server := testutil.NewUpstream(t)
	server.On("/v1/offers", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, 500, "internal error")
	})

	sleeper := &testutil.FakeSleeper{}
	cfg := provider.DefaultConfig()
	cfg.BaseURL = server.BaseURL()
	cfg.APIKey = provider.Secret(testutil.TestAPIKey)
	cfg.RPS = 1000
	cfg.Burst = 1000
	cfg.EndpointRPS = 0
	cfg.MaxRetries = 6

	client, err := provider.New(cfg, provider.WithLogger(quietLogger()), provider.WithSleeper(sleeper))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	err = client.Get(context.Background(), "/v1/offers", nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, faults.Unavailable, faults.Classify(err))
	assert.Equal(t, 5, server.RequestCount(), "breaker trips after 5 consecutive failures")
}

func TestCall_ScrubsQueryCredentialFromTransportErrors(t *testing.T) {
	cfg := provider.DefaultConfig()
	// Nothing listens here; the dial fails and the error echoes the URL.
	cfg.BaseURL = "http://127.0.0.1:1"
	cfg.APIKey = provider.Secret(testutil.TestAPIKey)
	cfg.AuthMode = provider.AuthQuery
	cfg.MaxRetries = 0
	cfg.RPS = 1000
	cfg.Burst = 1000
	cfg.EndpointRPS = 0

	client, err := provider.New(cfg, provider.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	err = client.Get(context.Background(), "/v1/offers", nil, nil)

	require.Error(t, err)
	assert.NotContains(t, err.Error(), testutil.TestAPIKey, "credential never appears in errors")
	assert.Contains(t, err.Error(), "[REDACTED]")
}

func TestCall_HeaderAuthMode(t *testing.T) {
	server := testutil.NewUpstream(t)
	server.On("/v1/hotels", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testutil.TestAPIKey, r.Header.Get("X-API-Key"))
		testutil.ReplyJSON(w, map[string]any{})
	})

	cfg := provider.DefaultConfig()
	cfg.BaseURL = server.BaseURL()
	cfg.APIKey = provider.Secret(testutil.TestAPIKey)
	cfg.AuthMode = provider.AuthHeader
	cfg.RPS = 1000
	cfg.Burst = 1000
	cfg.EndpointRPS = 0

	client, err := provider.New(cfg, provider.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.NoError(t, client.Get(context.Background(), "/v1/hotels", nil, nil))
}
