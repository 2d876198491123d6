package services

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an order or phase id is unknown
var ErrNotFound = errors.New("record not found")

// ValidationKind classifies a rejected request
type ValidationKind string

const (
	KindLocked          ValidationKind = "locked"
	KindInvalidStatus   ValidationKind = "invalid_status"
	KindNoOp            ValidationKind = "no_op"
	KindInvalidPriority ValidationKind = "invalid_priority"
	KindInvalidField    ValidationKind = "invalid_field"
	KindEmptyMessage    ValidationKind = "empty_message"
	KindMessageTooLong  ValidationKind = "message_too_long"
)

// ValidationError is raised before any cache or store write happens.
// Retrying without changing the request yields the same error.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationKindOf returns the kind of a ValidationError anywhere in err's chain
func ValidationKindOf(err error) (ValidationKind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}

// IsNoOp reports whether err is the silent "nothing to change" rejection
func IsNoOp(err error) bool {
	kind, ok := ValidationKindOf(err)
	return ok && kind == KindNoOp
}

// PersistenceError reports a failed durable write. The cache has already
// been restored when it is surfaced; reissuing the same call is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: durable write failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialDeletionError reports a cascading delete that stopped after some
// dependent rows were already removed.
type PartialDeletionError struct {
	OrderID uint
	Removed []string
	Err     error
}

func (e *PartialDeletionError) Error() string {
	return fmt.Sprintf("order %d partially deleted (removed %v): %v", e.OrderID, e.Removed, e.Err)
}

func (e *PartialDeletionError) Unwrap() error {
	return e.Err
}
