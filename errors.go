package reliability

import (
	"errors"

	"github.com/EfeDurmaz16/aspendos-reliability/credit"
	"github.com/EfeDurmaz16/aspendos-reliability/dlq"
)

// Sentinel errors re-exported from the subpackages that produce them, so
// callers can branch on reliability.Err* without extra imports.
var (
	// Credit errors
	ErrInsufficientCredits = credit.ErrInsufficientCredits
	ErrAlreadyReserved     = credit.ErrAlreadyReserved
	ErrReservationNotFound = credit.ErrReservationNotFound

	// Dead letter queue errors
	ErrEntryNotFound = dlq.ErrEntryNotFound
	ErrNotDead       = dlq.ErrNotDead
)

// ValidationError represents an input validation failure with details.
type ValidationError = credit.ValidationError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// IsBusinessRule returns true if the error is a business-rule refusal
// rather than a caller bug or an infrastructure failure.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrAlreadyReserved) ||
		errors.Is(err, ErrNotDead)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return credit.IsValidation(err)
}
