// Package errs provides the unified error type used across all of dazense.
//
// Every subsystem (semantic catalog, query engine, dataset drivers, server)
// wraps its failures into *errs.Error before returning them to callers.
// Callers use the Kind predicates to handle errors without importing the
// package that produced them.
//
// Usage:
//
//	// In the engine, reject an unknown measure, listing valid names:
//	return errs.NotFound(errs.KindMeasureNotFound,
//	    fmt.Sprintf("measure %q not found on model %q", name, model), available)
//
//	// At the HTTP boundary, pick a status code:
//	if errs.IsClientError(err) {
//	    http.Error(w, err.Error(), http.StatusBadRequest)
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorises an error without exposing subsystem-specific detail.
// The first group covers user-correctable conditions raised while resolving
// a metric query or loading a model document; the second group covers
// infrastructure failures from the backing data source.
type Kind int

const (
	KindUnknown Kind = iota

	// Query resolution and model loading; client-correctable.
	KindModelNotFound             // model name absent from the catalog
	KindMeasureNotFound           // measure name absent from the model
	KindDimensionNotFound         // plain dimension name absent from the model
	KindJoinNotFound              // dimension alias has no join definition
	KindAmbiguousDatabase         // several databases configured, none pinned
	KindDatabaseNotFound          // pinned database name absent from configuration
	KindUnsupportedFilterOperator // filter operator outside the supported set
	KindMeasureValidation         // measure definition invalid at load time
	KindModelDocument             // model document unparseable or structurally broken
	KindInvalidQuery              // malformed request (empty, nested join path, ...)

	// Data source failures, surfaced as server faults, never reinterpreted.
	KindConnectionFailed // cannot reach or authenticate to the backend
	KindQueryFailed      // backend rejected or failed the execution
	KindTimeout          // context deadline or cancellation
)

func (k Kind) String() string {
	switch k {
	case KindModelNotFound:
		return "model_not_found"
	case KindMeasureNotFound:
		return "measure_not_found"
	case KindDimensionNotFound:
		return "dimension_not_found"
	case KindJoinNotFound:
		return "join_not_found"
	case KindAmbiguousDatabase:
		return "ambiguous_database"
	case KindDatabaseNotFound:
		return "database_not_found"
	case KindUnsupportedFilterOperator:
		return "unsupported_filter_operator"
	case KindMeasureValidation:
		return "measure_validation"
	case KindModelDocument:
		return "model_document"
	case KindInvalidQuery:
		return "invalid_query"
	case KindConnectionFailed:
		return "connection_failed"
	case KindQueryFailed:
		return "query_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all dazense subsystems.
// Alternatives, when set, lists the valid identifiers the caller could
// have used instead (model names, measure names, database names, ...).
type Error struct {
	Kind         Kind
	Message      string
	Alternatives []string
	Cause        error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if len(e.Alternatives) > 0 {
		fmt.Fprintf(&b, " (available: %s)", strings.Join(e.Alternatives, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates an *Error carrying the list of valid alternatives.
func NotFound(kind Kind, msg string, alternatives []string) *Error {
	return &Error{Kind: kind, Message: msg, Alternatives: alternatives}
}

// Wrap creates an *Error with the given kind, message, and underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// KindOf extracts the Kind from any error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsClientError reports whether err is a user-correctable condition that
// the exposing boundary should render as a client-error response. Anything
// else (data source failures included) is a server fault.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindModelNotFound, KindMeasureNotFound, KindDimensionNotFound,
		KindJoinNotFound, KindAmbiguousDatabase, KindDatabaseNotFound,
		KindUnsupportedFilterOperator, KindMeasureValidation,
		KindModelDocument, KindInvalidQuery:
		return true
	}
	return false
}

// IsNotFound reports whether err names an identifier absent from the
// catalog or configuration (model, measure, dimension, join, database).
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case KindModelNotFound, KindMeasureNotFound, KindDimensionNotFound,
		KindJoinNotFound, KindDatabaseNotFound:
		return true
	}
	return false
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == KindConnectionFailed
}

// IsQueryFailed reports whether err is a backend execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == KindQueryFailed
}
