package provider

import (
	"os"
	"strconv"
	"time"
)

// AuthMode selects how the API key is attached to requests.
type AuthMode string

const (
	// AuthBearer sends the key as "Authorization: Bearer <key>".
	AuthBearer AuthMode = "bearer"
	// AuthHeader sends the key in a custom header named by AuthName.
	AuthHeader AuthMode = "header"
	// AuthQuery sends the key as a query parameter named by AuthName.
	// Some hotel APIs still require this; the key is scrubbed from any
	// transport error that echoes the URL.
	AuthQuery AuthMode = "query"
)

// Config holds provider client configuration.
type Config struct {
	// Upstream
	BaseURL  string
	APIKey   Secret
	AuthMode AuthMode
	AuthName string // header or query parameter name, per AuthMode

	// HTTP
	RequestTimeout time.Duration
	MaxIdleConns   int
	IdleTimeout    time.Duration

	// Rate limiting
	RPS           float64
	Burst         int
	EndpointRPS   float64 // per-endpoint ceiling, 0 = shared only
	EndpointBurst int

	// Circuit breaker
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	// Retry settings
	MaxRetries    int
	RetryBaseWait time.Duration
	RetryMaxWait  time.Duration
	RetryFactor   float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AuthMode:           AuthBearer,
		RequestTimeout:     45 * time.Second,
		MaxIdleConns:       100,
		IdleTimeout:        90 * time.Second,
		RPS:                10,
		Burst:              10,
		EndpointRPS:        5,
		EndpointBurst:      5,
		BreakerMaxRequests: 3,
		BreakerInterval:    10 * time.Second,
		BreakerTimeout:     60 * time.Second,
		MaxRetries:         3,
		RetryBaseWait:      time.Second,
		RetryMaxWait:       30 * time.Second,
		RetryFactor:        2.0,
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	cfg.BaseURL = getEnv("PROVIDER_BASE_URL", "")
	cfg.APIKey = Secret(getEnv("PROVIDER_API_KEY", ""))

	if mode := getEnv("PROVIDER_AUTH_MODE", ""); mode != "" {
		cfg.AuthMode = AuthMode(mode)
	}
	cfg.AuthName = getEnv("PROVIDER_AUTH_NAME", cfg.AuthName)

	if d, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "45s")); err == nil {
		cfg.RequestTimeout = d
	}

	if f, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "10"), 64); err == nil {
		cfg.RPS = f
	}

	if i, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "10")); err == nil {
		cfg.Burst = i
	}

	if f, err := strconv.ParseFloat(getEnv("ENDPOINT_RPS", "5"), 64); err == nil {
		cfg.EndpointRPS = f
	}

	if i, err := strconv.Atoi(getEnv("ENDPOINT_BURST", "5")); err == nil {
		cfg.EndpointBurst = i
	}

	if i, err := strconv.ParseUint(getEnv("BREAKER_MAX_REQUESTS", "3"), 10, 32); err == nil {
		cfg.BreakerMaxRequests = uint32(i)
	}

	if d, err := time.ParseDuration(getEnv("BREAKER_INTERVAL", "10s")); err == nil {
		cfg.BreakerInterval = d
	}

	if d, err := time.ParseDuration(getEnv("BREAKER_TIMEOUT", "60s")); err == nil {
		cfg.BreakerTimeout = d
	}

	if i, err := strconv.Atoi(getEnv("MAX_RETRIES", "3")); err == nil {
		cfg.MaxRetries = i
	}

	if d, err := time.ParseDuration(getEnv("RETRY_BASE_WAIT", "1s")); err == nil {
		cfg.RetryBaseWait = d
	}

	if d, err := time.ParseDuration(getEnv("RETRY_MAX_WAIT", "30s")); err == nil {
		cfg.RetryMaxWait = d
	}

	if f, err := strconv.ParseFloat(getEnv("RETRY_FACTOR", "2.0"), 64); err == nil {
		cfg.RetryFactor = f
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
