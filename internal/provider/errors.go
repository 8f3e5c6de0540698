package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes provider errors for fallback and user messaging
// decisions.
type ErrorKind string

const (
	// KindCredential means the credential lacks access (401/403, permission
	// denied). Systemic: must not be retried against any provider.
	KindCredential ErrorKind = "credential"

	// KindTransient covers rate limiting, overload, timeouts and other
	// conditions that may clear on their own. Eligible for retry and for
	// fallback to the next provider.
	KindTransient ErrorKind = "transient"

	// KindMalformed means the response could not be parsed against the
	// expected shape, including a successful call that carried no payload.
	// Counts as a single-provider failure, not retried on that call.
	KindMalformed ErrorKind = "malformed"

	// KindOffline means no network attempt was made at all.
	KindOffline ErrorKind = "offline"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Reason   string // short machine-readable detail ("rate_limited", "timeout", ...)
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error with an explicit kind.
func NewError(providerName string, kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Provider: providerName, Reason: reason, Err: err}
}

// Classify wraps err with a kind derived from its message. Network and other
// unrecognized failures default to transient so the orchestrator moves on to
// the next provider rather than giving up.
func Classify(providerName string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	msg := err.Error()
	switch {
	case IsCredentialMessage(msg):
		return NewError(providerName, KindCredential, "unauthorized", err)
	case IsRateLimitMessage(msg):
		return NewError(providerName, KindTransient, "rate_limited", err)
	case IsOverloadedMessage(msg):
		return NewError(providerName, KindTransient, "unavailable", err)
	case IsTimeoutMessage(msg):
		return NewError(providerName, KindTransient, "timeout", err)
	case IsMalformedMessage(msg):
		return NewError(providerName, KindMalformed, "bad_response", err)
	default:
		return NewError(providerName, KindTransient, "unknown", err)
	}
}

// KindOf returns the classified kind of err, or "" for nil / unclassified
// errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether the error is worth retrying against the same
// provider. Only transient conditions qualify; credential errors are systemic
// and malformed responses rarely improve on an identical immediate retry.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsCredentialMessage checks if a message indicates an auth/permission failure.
// "requested entity was not found" is treated as a permission problem: Gemini
// returns it when a key has no access to the requested model.
func IsCredentialMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "401") || strings.Contains(lower, "403") {
		return true
	}

	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "requested entity was not found") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "invalid credentials")
}

// IsRateLimitMessage checks if a message indicates rate limiting.
func IsRateLimitMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "429") {
		return true
	}

	return strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource has been exhausted")
}

// IsOverloadedMessage checks if a message indicates the service is down or
// overloaded.
func IsOverloadedMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "503") || strings.Contains(lower, "502") {
		return true
	}

	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "server is busy") ||
		strings.Contains(lower, "temporarily unavailable") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "model is currently loading")
}

// IsTimeoutMessage checks if a message indicates a timeout or dropped
// connection.
func IsTimeoutMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "408") || strings.Contains(lower, "504") {
		return true
	}

	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused")
}

// IsMalformedMessage checks if a message indicates an unparseable response.
func IsMalformedMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	return strings.Contains(lower, "unexpected end of json") ||
		strings.Contains(lower, "invalid character") ||
		strings.Contains(lower, "cannot unmarshal") ||
		strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "empty response")
}
