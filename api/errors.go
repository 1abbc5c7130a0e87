// ABOUTME: Typed error taxonomy for the CRM REST collaborator
// ABOUTME: Distinguishes auth, rate-limit, conflict, validation, and transient failures
package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthorized indicates a 401; the stored credentials have already been
// cleared by the time callers see it.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound indicates a 404. Deletes treat it as already-deleted.
var ErrNotFound = errors.New("not found")

// RateLimitError indicates a 429. Calls are suppressed until RetryAt; no
// rollback is warranted, the operation is just deferred.
type RateLimitError struct {
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.RetryAt.Format(time.RFC3339))
}

// ConflictError carries a duplicate/conflict message verbatim for the user.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api request failed: status=%d message=%s", e.Code, e.Message)
}

// IsTransient reports whether an error is an expected transient server
// failure (5xx). Background refreshes swallow these.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 && se.Code <= 599
	}
	return false
}

// IsConflict reports whether an error is a duplicate/conflict rejection.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsRateLimited reports whether an error is a rate-limit deferral, returning
// the time calls may resume.
func IsRateLimited(err error) (time.Time, bool) {
	var re *RateLimitError
	if errors.As(err, &re) {
		return re.RetryAt, true
	}
	return time.Time{}, false
}
