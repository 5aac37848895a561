// tripwire-probe fires a burst of calls at a provider endpoint through
// the full resilience stack and reports what the retry loop, circuit
// breaker, and rate limiter did. Useful for verifying tuning against a
// staging upstream before pointing production traffic at it.
//
// Configuration comes from the environment (see provider.LoadConfig);
// a .env file in the working directory is loaded first.
//
// Usage:
//
//	PROVIDER_BASE_URL=https://test.api.example.com \
//	PROVIDER_API_KEY=sk_test_... \
//	tripwire-probe -endpoint /v1/ping -count 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voyahq/tripwire/provider"
)

func main() {
	endpoint := flag.String("endpoint", "/v1/ping", "endpoint path to probe")
	count := flag.Int("count", 10, "number of probe calls")
	interval := flag.Duration("interval", 0, "pause between probe calls")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Missing .env is fine; real env vars win either way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env", "error", err)
	}

	if err := run(logger, *endpoint, *count, *interval); err != nil {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, endpoint string, count int, interval time.Duration) error {
	cfg, err := provider.LoadConfig()
	if err != nil {
		return err
	}

	client, err := provider.New(*cfg, provider.WithLogger(logger))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("probing upstream",
		"base_url", cfg.BaseURL,
		"endpoint", endpoint,
		"count", count,
	)

	var ok, failed int
	start := time.Now()
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}

		callStart := time.Now()
		err := client.Get(ctx, endpoint, nil, nil)
		elapsed := time.Since(callStart)

		if err != nil {
			failed++
			logger.Warn("probe call failed", "n", i+1, "elapsed", elapsed, "error", err)
		} else {
			ok++
			logger.Debug("probe call succeeded", "n", i+1, "elapsed", elapsed)
		}

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	fmt.Printf("probed %s: %d ok, %d failed in %s\n",
		endpoint, ok, failed, time.Since(start).Round(time.Millisecond))
	return nil
}
