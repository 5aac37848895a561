// Package testutil provides shared test helpers: a recording fake
// sleeper for backoff assertions, a fake clock for breaker transitions,
// and a mock upstream provider server with canned replies.
package testutil
