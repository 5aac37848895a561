package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/voyahq/tripwire/faults"
	"github.com/voyahq/tripwire/internal/httpclient"
	"github.com/voyahq/tripwire/internal/scrub"
	"github.com/voyahq/tripwire/ratelimit"
	"github.com/voyahq/tripwire/retry"
)

const maxResponseSize = 10 << 20 // 10MB

// Client is a resilient HTTP client for one upstream provider.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *ratelimit.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	retryCfg   retry.Config
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLimiter shares an existing rate limiter, e.g. when several
// clients talk to endpoints billed against one quota.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithSleeper sets a custom sleeper for retry timing (useful for testing).
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) {
		c.retryCfg.Sleeper = s
	}
}

// New creates a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if cfg.APIKey.IsEmpty() {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		config: cfg,
		retryCfg: retry.Config{
			MaxRetries:    cfg.MaxRetries,
			InitialDelay:  cfg.RetryBaseWait,
			MaxDelay:      cfg.RetryMaxWait,
			BackoffFactor: cfg.RetryFactor,
			Jitter:        true,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		httpCfg := httpclient.DefaultConfig()
		httpCfg.RequestTimeout = cfg.RequestTimeout
		httpCfg.MaxIdleConns = cfg.MaxIdleConns
		httpCfg.IdleTimeout = cfg.IdleTimeout
		c.httpClient = httpclient.New(httpCfg)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.Config{
			RPS:      cfg.RPS,
			Burst:    cfg.Burst,
			KeyRPS:   cfg.EndpointRPS,
			KeyBurst: cfg.EndpointBurst,
		})
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "provider",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return c, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// Get performs a GET against endpoint and decodes the JSON response
// into out.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, endpoint, query, nil, out)
}

// Post performs a JSON POST against endpoint and decodes the response
// into out. Pass a nil out for endpoints whose response body is
// irrelevant.
func (c *Client) Post(ctx context.Context, endpoint string, payload any, out any) error {
	return c.call(ctx, http.MethodPost, endpoint, nil, payload, out)
}

func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	attempt := func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
		body, err := c.breaker.Execute(func() ([]byte, error) {
			return c.doRequest(ctx, method, endpoint, query, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, faults.New(faults.Unavailable, endpoint, err)
			}
			return nil, err
		}
		return body, nil
	}

	body, err := retry.Do(ctx, c.retryCfg, attempt)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("provider: %s: failed to parse response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, payload any) ([]byte, error) {
	u, err := url.Parse(c.config.BaseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("provider: invalid endpoint %q: %w", endpoint, err)
	}

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.config.AuthMode == AuthQuery {
		q.Set(c.authName(), c.config.APIKey.Value())
	}
	u.RawQuery = q.Encode()

	var reqBody io.Reader
	if payload != nil {
		jsonData, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			return nil, fmt.Errorf("provider: failed to marshal request: %w", marshalErr)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	switch c.config.AuthMode {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey.Value())
	case AuthHeader:
		req.Header.Set(c.authName(), c.config.APIKey.Value())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := scrub.FromError(err, c.config.APIKey.Value())
		return nil, faults.New(faults.Transient, endpoint, wrapped)
	}
	defer resp.Body.Close()

	// Read one byte past the limit to detect overflow without a false
	// positive on exactly-maxResponseSize bodies.
	limitedReader := io.LimitReader(resp.Body, maxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, faults.New(faults.Transient, endpoint, fmt.Errorf("provider: failed to read response: %w", err))
	}
	if int64(len(body)) > maxResponseSize {
		return nil, ErrResponseTooLarge
	}

	if resp.StatusCode >= 400 {
		return nil, asFault(parseAPIError(endpoint, resp, body))
	}

	return body, nil
}

func (c *Client) authName() string {
	if c.config.AuthName != "" {
		return c.config.AuthName
	}
	switch c.config.AuthMode {
	case AuthQuery:
		return "api_key"
	default:
		return "X-API-Key"
	}
}

// errorEnvelope is the common error shape across provider APIs.
type errorEnvelope struct {
	Error struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after,omitempty"`
	} `json:"error"`
}

// parseAPIError builds an APIError from an upstream failure response.
// Retry-After comes from the JSON envelope first, then the HTTP header.
func parseAPIError(endpoint string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Status:   resp.StatusCode,
		Endpoint: endpoint,
		Message:  http.StatusText(resp.StatusCode),
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
		}
		if envelope.Error.Message != "" {
			apiErr.Message = envelope.Error.Message
		}
		if envelope.Error.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Error.RetryAfter) * time.Second
		}
	}

	if apiErr.RetryAfter == 0 {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
				apiErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
	}

	return apiErr
}

// isBreakerSuccess decides what counts as a circuit breaker failure.
// Only server errors (5xx) and transport failures trip the breaker;
// 4xx including 429 are client-side pressure, not service degradation.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500
	}
	return false
}
