package models

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the presentation layer.
var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrLimitExceeded      = errors.New("profile limit reached")
	ErrAlreadyRunning     = errors.New("a session is already running")
	ErrNoTimeRemaining    = errors.New("no time remaining")
	ErrMalformedPIN       = errors.New("pin must be exactly 4 digits")
	ErrPINMismatch        = errors.New("pin does not match")
	ErrSamePIN            = errors.New("new pin must differ from the current pin")
	ErrConfirmMismatch    = errors.New("confirmation does not match the new pin")
	ErrInvalidName        = errors.New("name must be 1-10 characters")
	ErrInvalidMinutes     = errors.New("minutes out of range")
	ErrInvalidFormat      = errors.New("invalid backup format")
	ErrUnsupportedVersion = errors.New("backup was created by a newer version")
	ErrPersistence        = errors.New("persistence failure")
)

// LockedError rejects PIN verification while the lockout window is open.
type LockedError struct {
	SecondsRemaining int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("pin entry locked for %d more seconds", e.SecondsRemaining)
}

// PersistenceError wraps an underlying store failure so callers can match on
// ErrPersistence while keeping the cause.
func PersistenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
