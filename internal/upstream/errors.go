// Package upstream is the shared substrate for all provider calls:
// per-provider rate limiting, circuit breaking, bounded retries, key
// rotation and a uniform error taxonomy.
package upstream

import (
	"context"
	"errors"
	"fmt"
)

// Class buckets every provider failure into one of the cases callers
// can act on.
type Class string

const (
	// ClassTransient - network flap or 5xx; safe to retry.
	ClassTransient Class = "transient"
	// ClassRateLimited - the vendor rejected for quota; retried with a longer backoff.
	ClassRateLimited Class = "rate_limited"
	// ClassUnavailable - provider down or circuit open.
	ClassUnavailable Class = "unavailable"
	// ClassNotFound - instrument or dataset does not exist upstream.
	ClassNotFound Class = "not_found"
	// ClassInvalidArgument - the request itself is malformed.
	ClassInvalidArgument Class = "invalid_argument"
	// ClassNoKeyAvailable - every rotating key is exhausted.
	ClassNoKeyAvailable Class = "no_key_available"
	// ClassDeadline - the caller's context expired first.
	ClassDeadline Class = "deadline"
)

// Error is the uniform provider error. Provider and Op name the call
// site for logs; Err keeps the cause for errors.Is/As chains.
type Error struct {
	Class    Class
	Provider string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Class)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified provider error.
func NewError(class Class, provider, op string, err error) *Error {
	return &Error{Class: class, Provider: provider, Op: op, Err: err}
}

// ClassOf extracts the class of any error. Context errors map to
// ClassDeadline; everything unclassified is ClassTransient, the safe
// default for one retry.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Class
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassDeadline
	}
	return ClassTransient
}

// IsRetryable reports whether one more attempt could help. Quota
// rejections retry too: later, against a longer backoff, and for keyed
// providers on the next key in the pool.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransient, ClassRateLimited:
		return true
	}
	return false
}

// countsAsFailure reports whether the error should trip the breaker.
// Caller mistakes and missing data say nothing about provider health.
func countsAsFailure(err error) bool {
	switch ClassOf(err) {
	case ClassNotFound, ClassInvalidArgument, ClassDeadline:
		return false
	}
	return true
}
