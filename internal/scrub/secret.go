// Package scrub provides security helpers for keeping provider
// credentials out of logs and error messages.
package scrub

import "strings"

// FromError removes the secret from an error message. Go's
// http.Client.Do() includes the request URL in error strings, which
// leaks query-string credentials. Preserves the error chain for
// errors.Is/As via Unwrap().
func FromError(err error, secret string) error {
	if err == nil {
		return nil
	}
	if secret == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, secret) {
		return err
	}
	return &scrubbedError{
		msg: strings.ReplaceAll(msg, secret, "[REDACTED]"),
		err: err,
	}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
