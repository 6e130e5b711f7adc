// Package pin implements the brute-force-resistant PIN gate guarding the
// parent mode.
package pin

import (
	"regexp"
	"time"

	"gametime-keeper/internal/models"
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Valid reports whether s is a syntactically valid PIN (exactly 4 digits).
func Valid(s string) bool {
	return pinPattern.MatchString(s)
}

// Result describes the observable outcome of a verification attempt. It never
// exposes the true PIN.
type Result struct {
	Accepted             bool
	AttemptsRemaining    int
	LockSecondsRemaining int
}

// Gate tracks consecutive failures and the lockout window. State is
// ephemeral: a process restart resets it.
type Gate struct {
	maxAttempts int
	lockout     time.Duration

	failedAttempts int
	lockedUntil    time.Time // zero = not locked
}

// NewGate creates a gate that locks for the given duration after maxAttempts
// consecutive failures.
func NewGate(maxAttempts int, lockout time.Duration) *Gate {
	return &Gate{maxAttempts: maxAttempts, lockout: lockout}
}

// Verify checks input against the stored PIN at instant now.
//
// Failure kinds: models.ErrMalformedPIN (not 4 digits, does not consume an
// attempt), models.ErrPINMismatch, or *models.LockedError while the lockout
// window is open. Reaching the attempt limit starts the lockout and resets
// the failure count; the lockout expires lazily on the next call.
func (g *Gate) Verify(input, stored string, now time.Time) (Result, error) {
	if !g.lockedUntil.IsZero() {
		if now.Before(g.lockedUntil) {
			secs := secondsUntil(now, g.lockedUntil)
			return Result{LockSecondsRemaining: secs}, &models.LockedError{SecondsRemaining: secs}
		}
		g.lockedUntil = time.Time{}
		g.failedAttempts = 0
	}

	if !Valid(input) {
		return Result{AttemptsRemaining: g.maxAttempts - g.failedAttempts}, models.ErrMalformedPIN
	}

	if input == stored {
		g.failedAttempts = 0
		return Result{Accepted: true, AttemptsRemaining: g.maxAttempts}, nil
	}

	g.failedAttempts++
	if g.failedAttempts >= g.maxAttempts {
		g.failedAttempts = 0
		g.lockedUntil = now.Add(g.lockout)
		secs := secondsUntil(now, g.lockedUntil)
		return Result{LockSecondsRemaining: secs}, &models.LockedError{SecondsRemaining: secs}
	}
	return Result{AttemptsRemaining: g.maxAttempts - g.failedAttempts}, models.ErrPINMismatch
}

// Reset clears the failure count and any lockout, e.g. when leaving the PIN
// entry screen.
func (g *Gate) Reset() {
	g.failedAttempts = 0
	g.lockedUntil = time.Time{}
}

// LockSecondsRemaining returns the remaining lockout in whole seconds, or 0
// when the gate is open.
func (g *Gate) LockSecondsRemaining(now time.Time) int {
	if g.lockedUntil.IsZero() || !now.Before(g.lockedUntil) {
		return 0
	}
	return secondsUntil(now, g.lockedUntil)
}

// ValidateChange checks a PIN change request: the supplied current PIN must
// match stored, the new PIN must be 4 digits, differ from the current one,
// and equal its confirmation.
func ValidateChange(current, stored, newPIN, confirm string) error {
	if current != stored {
		return models.ErrPINMismatch
	}
	if !Valid(newPIN) {
		return models.ErrMalformedPIN
	}
	if newPIN == stored {
		return models.ErrSamePIN
	}
	if confirm != newPIN {
		return models.ErrConfirmMismatch
	}
	return nil
}

func secondsUntil(now, deadline time.Time) int {
	secs := int((deadline.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
