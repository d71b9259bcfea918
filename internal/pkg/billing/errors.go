package billing

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores and providers when a record does not exist.
	ErrNotFound = errors.New("billing: not found")
	// ErrMalformedEvent marks an event that can never be handled as delivered.
	ErrMalformedEvent = errors.New("billing: malformed event")
	// ErrMissingTenant is returned when a new subscription cannot be tied to a tenant.
	ErrMissingTenant = errors.New("billing: no tenant for subscription")
	// ErrInvalidCharge is returned for charge inputs rejected before any attempt.
	ErrInvalidCharge = errors.New("billing: invalid charge")
)

// ErrorKind classifies provider failures for the rotation engine and resolver.
type ErrorKind string

const (
	ErrorKindDeclined      ErrorKind = "declined"
	ErrorKindInvalidMethod ErrorKind = "invalid_method"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindUnknown       ErrorKind = "unknown"
)

// ProviderError is a classified error returned by a PaymentProviderClient.
type ProviderError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("provider %s (%s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match not-found provider errors.
func (e *ProviderError) Is(target error) bool {
	return target == ErrNotFound && e.Kind == ErrorKindNotFound
}

// KindOf classifies any error returned by a provider call.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorKindNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransient
	}
	return ErrorKindUnknown
}

// ErrorCode returns the provider error code, if any.
func ErrorCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// RotationError is returned when every candidate payment method failed.
type RotationError struct {
	Attempts []PaymentAttempt
	Last     error
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("billing: all payment methods failed after %d attempts: last error: %v", len(e.Attempts), e.Last)
}

func (e *RotationError) Unwrap() error { return e.Last }
