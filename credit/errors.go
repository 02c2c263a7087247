package credit

import (
	"errors"
	"fmt"
)

// Sentinel errors for business-rule failures. Callers are expected to
// branch on these with errors.Is rather than treat them as exceptional.
var (
	// ErrInsufficientCredits is returned when a reservation asks for more
	// than the account's available balance.
	ErrInsufficientCredits = errors.New("credit: insufficient credits")

	// ErrAlreadyReserved is returned when an active reservation with the
	// same operation ID already exists for the account.
	ErrAlreadyReserved = errors.New("credit: operation already reserved")

	// ErrReservationNotFound is returned when a reservation ID does not
	// resolve to an active reservation. This includes reservations that
	// were already committed, released, or expired.
	ErrReservationNotFound = errors.New("credit: reservation not found")
)

// ValidationError represents an input validation failure with details.
// Unlike the sentinel errors above, a ValidationError always indicates a
// caller bug: bad input is rejected before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("credit: validation failed for %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
