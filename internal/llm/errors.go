package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned when a client is constructed without an API key.
var ErrNotConfigured = errors.New("llm: api key not configured")

// ErrorKind buckets transport failures for logs and metrics. Completion
// errors are classified but never retried here; the turn is interactive and
// an automatic retry would double-bill and double-latency the user.
type ErrorKind string

const (
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindCanceled  ErrorKind = "canceled"
	ErrKindRateLimit ErrorKind = "rate_limited"
	ErrKindAuth      ErrorKind = "auth"
	ErrKindServer    ErrorKind = "server"
	ErrKindOther     ErrorKind = "other"
)

// Classify maps a completion error to its metrics bucket.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCanceled
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrKindTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return ErrKindRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return ErrKindAuth
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") ||
		strings.Contains(msg, "overloaded"):
		return ErrKindServer
	default:
		return ErrKindOther
	}
}
