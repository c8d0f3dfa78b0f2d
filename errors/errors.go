// Package errors provides error handling for dataloader.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Safe (redactable) details for storage failures
//
// On top of that it defines the error kinds every job configuration
// operation can surface. Callers classify with errors.Is against the
// sentinels below; the HTTP layer maps each kind to a status code.
//
// Usage:
//
//	if rec == nil {
//	    return errors.NewNotFoundError("job configuration %s", id)
//	}
//
//	if err := tx.Commit(); err != nil {
//	    return errors.WrapStore(err, "commit publish")
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSafeDetails    = crdb.WithSafeDetails
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Error kinds surfaced by the job configuration lifecycle.
var (
	// ErrValidation: missing required input, wrong lifecycle state, unresolvable reference.
	ErrValidation = New("validation failed")

	// ErrNotFound: the id, lineage or catalog entry does not exist.
	ErrNotFound = New("not found")

	// ErrDuplication: uniqueness violated (draft name per item, version race exhausted).
	ErrDuplication = New("duplicate")

	// ErrMalformedVersion: a stored version label is not v<major>.<minor>. Data integrity
	// failure, never retried.
	ErrMalformedVersion = New("malformed version label")

	// ErrStore: the persistence layer failed. The cause is logged, not returned to clients.
	ErrStore = New("store failure")

	// ErrSubmission: the configuration was persisted but the scheduler rejected or
	// never acknowledged the bundle.
	ErrSubmission = New("scheduler submission failed")
)

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrValidation)
}

// NewNotFoundError creates a not-found error naming the missing entity
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format+" not found", args...), ErrNotFound)
}

// NewDuplicationError creates a duplication error with a formatted message
func NewDuplicationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrDuplication)
}

// NewMalformedVersionError reports a stored label that cannot be sequenced
func NewMalformedVersionError(label string) error {
	return WithDetailf(Wrapf(ErrMalformedVersion, "%q", label), "expected v<major>.<minor>")
}

// WrapStore marks err as a store failure. The driver error stays reachable
// through errors.Is/As; the HTTP layer never echoes store messages.
func WrapStore(err error, op string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, op), ErrStore)
}

// WrapSubmission marks err as a scheduler submission failure
func WrapSubmission(err error, op string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, op), ErrSubmission)
}

// IsValidationError checks if an error is or wraps ErrValidation
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsDuplicationError checks if an error is or wraps ErrDuplication
func IsDuplicationError(err error) bool {
	return err != nil && Is(err, ErrDuplication)
}

// IsMalformedVersionError checks if an error is or wraps ErrMalformedVersion
func IsMalformedVersionError(err error) bool {
	return err != nil && Is(err, ErrMalformedVersion)
}

// IsStoreError checks if an error is marked as a store failure
func IsStoreError(err error) bool {
	return err != nil && Is(err, ErrStore)
}

// IsSubmissionError checks if an error is marked as a submission failure
func IsSubmissionError(err error) bool {
	return err != nil && Is(err, ErrSubmission)
}
