package core

import (
	"errors"
	"fmt"
)

// ValidationError reports a request the gateway refuses before touching the
// database. Handlers map it to 400.
type ValidationError struct {
	Row    int    // Zero-based row index, -1 when not row specific
	Field  string // Offending field or identifier, if any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return e.Reason
}

func invalid(reason string) *ValidationError {
	return &ValidationError{Row: -1, Reason: reason}
}

func invalidRow(row int, field, reason string) *ValidationError {
	return &ValidationError{Row: row, Field: field, Reason: reason}
}

// ExecutionError reports a statement the engine rejected. The transaction,
// if any, has been rolled back. Handlers map it to 500.
type ExecutionError struct {
	Op    Op
	Table string
	Row   int // Zero-based index of the failing row, -1 when no single row is at fault
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("%s %q: row %d: %v", e.Op, e.Table, e.Row, e.Err)
	}
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Table, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FailedRow returns the row index carried by an *ExecutionError in err's
// chain, or -1.
func FailedRow(err error) int {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Row
	}
	return -1
}

// IsBatchError reports whether err came from a rolled-back insert or update
// batch. Those failures are logged under their batch ID.
func IsBatchError(err error) bool {
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		return false
	}
	return ee.Op == OpInsert || ee.Op == OpUpdate
}
