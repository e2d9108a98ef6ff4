// Package errors defines error types and utilities for dynaplan
package errors

import (
	"errors"
	"fmt"
)

// Common errors that can occur while planning or executing requests
var (
	// ErrUnsupportedOperator is returned when a condition uses an operator
	// outside the closed vocabulary
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrInvalidIndex is returned when a pinned index doesn't exist on the schema
	ErrInvalidIndex = errors.New("invalid index")

	// ErrMissingRangeKey is returned when a composite-key table is addressed
	// without its range key
	ErrMissingRangeKey = errors.New("missing range key")

	// ErrConditionalCheckFailed is returned when the service rejected a
	// conditioned write because the precondition did not hold
	ErrConditionalCheckFailed = errors.New("conditional check failed")

	// ErrServiceError is returned for any other wire-level failure
	ErrServiceError = errors.New("service error")

	// ErrItemNotFound is returned when a point read matches no item
	ErrItemNotFound = errors.New("item not found")

	// ErrTableNotFound is returned when a table doesn't exist
	ErrTableNotFound = errors.New("table not found")

	// ErrInvalidSchema is returned when a table schema fails validation
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrTransactionFailed is returned when a transaction is canceled
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrClosedTransaction is returned when actions are registered on, or a
	// commit is attempted against, a transaction that already committed or failed
	ErrClosedTransaction = errors.New("transaction already closed")

	// ErrTransactionTooLarge is returned when a transaction exceeds the
	// per-call action ceiling
	ErrTransactionTooLarge = errors.New("too many transaction actions")

	// ErrInvalidCondition is returned when a condition value doesn't fit its
	// operator, e.g. a single value for between
	ErrInvalidCondition = errors.New("invalid condition value")
)

// PlanError carries the failed operation and table alongside the cause.
type PlanError struct {
	Op    string // operation that failed, e.g. "Query", "BatchWrite"
	Table string
	Err   error
}

// Error implements the error interface. Table names are intentionally kept
// out of the message so errors are safe to log verbatim.
func (e *PlanError) Error() string {
	return fmt.Sprintf("dynaplan: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *PlanError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *PlanError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new PlanError
func NewError(op, table string, err error) *PlanError {
	return &PlanError{Op: op, Table: table, Err: err}
}

// IsConditionalCheckFailed reports whether err is a rejected write precondition
func IsConditionalCheckFailed(err error) bool {
	return errors.Is(err, ErrConditionalCheckFailed)
}

// IsNotFound reports whether err indicates a missing item
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

// IsUnsupportedOperator reports whether err came from operator validation
func IsUnsupportedOperator(err error) bool {
	return errors.Is(err, ErrUnsupportedOperator)
}
