package provider

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes provider failures.
type ErrorCode string

const (
	// ErrCodeInvalidAddress: the address failed the grammar, or is the
	// wrong kind for the operation (insert needs the collection, update and
	// delete need an item).
	ErrCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"

	// ErrCodeWriteFailed: the store rejected an insert, update or delete.
	ErrCodeWriteFailed ErrorCode = "WRITE_FAILED"

	// ErrCodeQueryFailed: the store failed to run a query.
	ErrCodeQueryFailed ErrorCode = "QUERY_FAILED"

	// ErrCodeInvalidArgument: a projection, selection or sort order was
	// rejected before reaching the store.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Error is returned by every Provider operation that fails.
// A zero-row update or delete is not an error.
type Error struct {
	Code    ErrorCode
	Op      string // "query", "insert", "update" or "delete"
	Address string
	Message string
	Err     error // underlying cause, unmodified
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Address, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsInvalidAddress returns true if err is an address rejection.
func IsInvalidAddress(err error) bool { return CodeOf(err) == ErrCodeInvalidAddress }

// IsWriteFailed returns true if the store rejected a write.
func IsWriteFailed(err error) bool { return CodeOf(err) == ErrCodeWriteFailed }

// IsQueryFailed returns true if the store failed a query.
func IsQueryFailed(err error) bool { return CodeOf(err) == ErrCodeQueryFailed }

// IsInvalidArgument returns true if query options were rejected.
func IsInvalidArgument(err error) bool { return CodeOf(err) == ErrCodeInvalidArgument }

func newError(code ErrorCode, op, addr string, err error) *Error {
	return &Error{Code: code, Op: op, Address: addr, Err: err}
}
