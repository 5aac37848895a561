package provider

import "log/slog"

// Secret wraps a provider API key to prevent accidental logging.
// Implements fmt.Stringer, fmt.GoStringer, slog.LogValuer, and
// encoding.TextMarshaler.
type Secret string

// Value returns the actual credential.
// Only use this when building a request to the upstream.
func (s Secret) Value() string { return string(s) }

// String returns a redacted placeholder (fmt.Stringer).
func (s Secret) String() string { return "[REDACTED]" }

// GoString returns redacted for %#v (fmt.GoStringer).
func (s Secret) GoString() string { return `provider.Secret("[REDACTED]")` }

// LogValue returns a redacted value for slog (slog.LogValuer).
// This ensures the key is never logged even with %+v.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// MarshalText returns redacted bytes (encoding.TextMarshaler).
// Prevents accidental JSON/YAML serialization of the credential.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// IsEmpty returns true if the key is empty.
func (s Secret) IsEmpty() bool {
	return s == ""
}
