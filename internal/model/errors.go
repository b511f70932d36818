package model

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks failures of the persistence layer itself. It is
// the only error that aborts a whole scheduler trigger.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError reports a malformed deal candidate or preference.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing deal, user or preference.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// TransportError reports an unreachable or timed out fetcher or mail transport.
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
