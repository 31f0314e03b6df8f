// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package failure defines the error taxonomy shared by source adapters, the
// artifact fetcher, and the retrieval planner. Every attempt ends in either a
// located resource or an error whose Kind tells the planner what to do next.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a lookup or download did not produce an artifact.
type Kind string

const (
	// KindNone is returned by KindOf for a nil error.
	KindNone Kind = ""

	// KindNotFound means the source has no matching resource. Retrying the
	// same source is wasted work.
	KindNotFound Kind = "not_found"

	// KindTransient covers network errors, timeouts, and rate limiting.
	// The planner retries the same source with backoff.
	KindTransient Kind = "transient"

	// KindInvalid means a resource was located but its content failed
	// validation. Treated like not-found for retry purposes.
	KindInvalid Kind = "invalid"

	// KindFatal is any unclassified error. Logged and treated like
	// not-found; it never aborts the batch.
	KindFatal Kind = "fatal"
)

// Error wraps a failure with its kind and the source that produced it.
type Error struct {
	Kind    Kind
	Source  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Source, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Source, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified failure.
func New(kind Kind, source, message string, err error) *Error {
	return &Error{Kind: kind, Source: source, Message: message, Err: err}
}

// NotFound reports that source has no resource for the identifier.
func NotFound(source, message string) *Error {
	return New(KindNotFound, source, message, nil)
}

// Transient wraps a retryable network-level error.
func Transient(source, message string, err error) *Error {
	return New(KindTransient, source, message, err)
}

// Invalid reports a located resource whose content was rejected.
func Invalid(source, message string) *Error {
	return New(KindInvalid, source, message, nil)
}

// KindOf extracts the failure kind from err. Context cancellation and
// deadline errors count as transient; anything else without a Kind is fatal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindFatal
}

// Retryable reports whether another attempt against the same source is
// worthwhile.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Definitive reports whether err is a settled negative answer that may be
// cached: the source was reached and said no.
func Definitive(err error) bool {
	k := KindOf(err)
	return k == KindNotFound || k == KindInvalid
}

// FromStatus maps a non-200 HTTP status to a failure. Rate limiting and
// server errors are transient; everything else means the source has nothing
// usable at that address.
func FromStatus(source string, code int) *Error {
	msg := fmt.Sprintf("HTTP %d", code)
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return Transient(source, msg, nil)
	default:
		return NotFound(source, msg)
	}
}
