package models

import "errors"

// ErrInvalidInput matches every request validation failure via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError is safe to show to the caller verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
