package common

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures so that callers can choose a recovery
// policy without inspecting error strings.
type ErrorKind string

const (
	KindConfigInvalid     ErrorKind = "config_invalid"
	KindProviderEmpty     ErrorKind = "provider_empty"
	KindProviderHTTP      ErrorKind = "provider_http"
	KindProviderParse     ErrorKind = "provider_parse"
	KindRateLimitExhaust  ErrorKind = "rate_limit_exhausted"
	KindRedisUnavailable  ErrorKind = "redis_unavailable"
	KindNotReady          ErrorKind = "not_ready"
	KindNotFound          ErrorKind = "not_found"
	KindBadInput          ErrorKind = "bad_input"
	KindConflictSingleton ErrorKind = "conflict_singleton"
	KindCancelled         ErrorKind = "cancelled"
	KindInternal          ErrorKind = "internal"
)

// KindError carries an ErrorKind alongside a message and optional cause.
type KindError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// NewError creates a KindError with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError creates a KindError wrapping a cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the ErrorKind from err, or KindInternal when untyped.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
