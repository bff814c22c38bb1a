package utils

import (
	"errors"
	"fmt"
)

// AppError carries the failing operation, a human-facing message, and the
// underlying cause. Invalid marks errors caused by bad caller input so
// transport layers can map them to client errors.
type AppError struct {
	Op      string
	Msg     string
	Err     error
	Invalid bool
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError for an internal failure.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewInvalidError constructs an AppError for rejected caller input.
func NewInvalidError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err, Invalid: true}
}

// IsInvalid reports whether err stems from rejected caller input.
func IsInvalid(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Invalid
}
