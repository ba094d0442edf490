package workflow

import (
	"errors"
	"fmt"

	"ministry-hr/internal/store"
)

var (
	ErrNotFound               = errors.New("absence request not found")
	ErrInvalidTransition      = errors.New("this request was already resolved")
	ErrUnauthorized           = errors.New("not allowed to perform this action")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrMissingReason          = errors.New("a rejection reason is required")
	ErrValidation             = errors.New("invalid absence request")
	ErrUnavailable            = errors.New("absence records are temporarily unavailable")
)

// Code maps a workflow error onto the stable code used on the wire.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAuthenticationRequired):
		return "authentication_required"
	case errors.Is(err, ErrMissingReason):
		return "missing_reason"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return ""
	}
}

// FromCode is the inverse of Code. Unknown codes yield nil.
func FromCode(code string) error {
	switch code {
	case "not_found":
		return ErrNotFound
	case "invalid_transition":
		return ErrInvalidTransition
	case "unauthorized":
		return ErrUnauthorized
	case "authentication_required":
		return ErrAuthenticationRequired
	case "missing_reason":
		return ErrMissingReason
	case "validation_error":
		return ErrValidation
	case "unavailable":
		return ErrUnavailable
	default:
		return nil
	}
}

// mapStoreError folds store failures into the workflow taxonomy. Anything the
// store cannot classify, timeouts included, is reported as ErrUnavailable.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrAbsenceNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidState):
		return ErrInvalidTransition
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
