package invoice

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("invoice not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStatusConflict is returned by a Repository when a conditional status
	// update found the invoice in a status outside the allowed set.
	ErrStatusConflict = errors.New("invoice status changed")

	// ErrDuplicateReference is returned by a Repository when a verified
	// transaction hash is already attached to another invoice.
	ErrDuplicateReference = errors.New("transaction reference already used")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move invoice from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
