package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies failures crossing the ingestion pipeline.
type Kind string

const (
	KindNetwork          Kind = "network"
	KindTimeout          Kind = "timeout"
	KindRateLimited      Kind = "rate_limited"
	KindProviderResponse Kind = "provider_response"
	KindAuth             Kind = "auth"
	KindCircuitOpen      Kind = "circuit_open"
	KindValidation       Kind = "validation"
	KindStorage          Kind = "storage"
	KindConfig           Kind = "config"
	KindUnsupported      Kind = "unsupported"
)

// Error is the typed error used by adapters, resilience guards and the ETL flow.
type Error struct {
	Kind     Kind
	Provider string
	Op       string
	Status   int
	Message  string
	Err      error
	// RetryAfter is the provider's requested pause for rate-limited responses.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		fmt.Fprintf(&b, " [%s]", e.Provider)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same Kind so sentinels like ErrCircuitOpen work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Provider == "" && t.Op == "" && t.Message == "" && t.Err == nil && t.Status == 0
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited, KindStorage:
		return true
	default:
		return false
	}
}

// Sentinels usable with errors.Is.
var (
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrProviderResponse = &Error{Kind: KindProviderResponse}
	ErrAuth             = &Error{Kind: KindAuth}
	ErrCircuitOpen      = &Error{Kind: KindCircuitOpen}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrStorage          = &Error{Kind: KindStorage}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
)

// New builds a typed error.
func New(kind Kind, provider, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message}
}

// Wrap builds a typed error around err.
func Wrap(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// WithOp sets the operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithStatus sets the upstream HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithRetryAfter sets the provider-requested pause.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// RetryAfterOf returns the provider-requested pause carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err (or anything it wraps) is a transient failure.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
