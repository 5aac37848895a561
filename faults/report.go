package faults

import (
	"context"
	"log/slog"
)

// Severity grades a terminal failure for the reporting sink.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the severity name for logging.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "error"
	}
}

// Notice describes one terminal failure surfaced to the reporter.
type Notice struct {
	Op       string // logical operation key
	Err      error
	Message  string // human-readable category, see UserMessage
	Severity Severity
	Attempts int
	Retry    func() // optional user-triggered retry action, nil if none
}

// Reporter is the centralized error sink invoked exactly once per
// terminal failure. Implementations surface user-facing notifications;
// the error itself is still returned to the caller.
type Reporter interface {
	Report(ctx context.Context, n Notice)
}

// LogReporter reports terminal failures as structured log records.
type LogReporter struct {
	Logger *slog.Logger
}

// Report logs the notice at a level matching its severity.
func (r *LogReporter) Report(ctx context.Context, n Notice) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelError
	switch n.Severity {
	case SeverityInfo:
		level = slog.LevelInfo
	case SeverityWarning:
		level = slog.LevelWarn
	}

	logger.LogAttrs(ctx, level, "operation failed",
		slog.String("op", n.Op),
		slog.String("class", Classify(n.Err).String()),
		slog.String("message", n.Message),
		slog.Int("attempts", n.Attempts),
		slog.Any("error", n.Err),
	)
}

// NopReporter discards all notices.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Notice) {}

// SeverityFor grades an error class: infrastructure failures are more
// severe than caller mistakes.
func SeverityFor(err error) Severity {
	switch Classify(err) {
	case Unavailable:
		return SeverityCritical
	case Transient, RateLimited:
		return SeverityWarning
	case Validation, Conflict:
		return SeverityInfo
	default:
		return SeverityError
	}
}

// Verify interface compliance.
var (
	_ Reporter = (*LogReporter)(nil)
	_ Reporter = NopReporter{}
)
