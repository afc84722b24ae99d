package domain

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")

	// ErrDuplicateOrderNumber is internal: the creation path re-allocates a
	// number and retries. It is never surfaced to the client.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")

	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransitionConflict means another transition won the race on the same
	// order. Callers may reload and retry.
	ErrTransitionConflict = errors.New("concurrent status transition")

	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("admin access required")

	// ErrUnknownStatusMessage is returned when no message template exists for
	// a status. The notification fails closed instead of sending blank text.
	ErrUnknownStatusMessage = errors.New("no message template for status")
)
