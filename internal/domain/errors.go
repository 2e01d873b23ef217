package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a CollectionError.
type ErrorKind string

const (
	// KindRateLimited marks a quota trip. It is handled internally by
	// waiting for the reset and never reaches the final report.
	KindRateLimited ErrorKind = "RateLimited"
	// KindTransient marks network faults and 5xx responses, retried with
	// backoff before they are allowed to surface.
	KindTransient ErrorKind = "Transient"
	// KindUnavailable marks a unit whose retries were exhausted.
	KindUnavailable ErrorKind = "Unavailable"
	// KindNotFound marks a permanently missing unit (404/410/451).
	KindNotFound ErrorKind = "NotFound"
	// KindForbidden marks a unit the token cannot access.
	KindForbidden ErrorKind = "Forbidden"
	// KindProtocolViolation marks a broken pagination contract.
	KindProtocolViolation ErrorKind = "ProtocolViolation"
	// KindConfiguration marks invalid startup configuration.
	KindConfiguration ErrorKind = "Configuration"
)

// CollectionError is the typed failure for one unit of collection work.
// RetryAfter, when non-zero, carries an upstream hint for how long to back
// off before the next attempt.
type CollectionError struct {
	Kind       ErrorKind
	Unit       string
	RetryAfter time.Duration
	Cause      error
}

func (e *CollectionError) Error() string {
	switch {
	case e.Unit != "" && e.Cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.Unit, e.Kind, e.Cause)
	case e.Unit != "":
		return fmt.Sprintf("%s: %s", e.Unit, e.Kind)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return string(e.Kind)
	}
}

func (e *CollectionError) Unwrap() error {
	return e.Cause
}

// KindOf extracts the taxonomy kind from err, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var ce *CollectionError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTransient reports whether err is worth retrying: transient upstream
// faults and rate-limit trips that resolve on their own.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	}
	return false
}

// RetryAfterHint returns the upstream-provided backoff hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var ce *CollectionError
	if errors.As(err, &ce) && ce.RetryAfter > 0 {
		return ce.RetryAfter, true
	}
	return 0, false
}
