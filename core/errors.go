/*
errors.go - Centralized error types for the reward engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Services wrap these with context; the API layer maps them to HTTP
  status codes without knowing which service produced them.

ERROR CATEGORIES:
  1. Lookup errors - entity absent
  2. Idempotency guards - already claimed / already completed
  3. Time boundary - expired or deactivated codes
  4. Accounting - insufficient balance
  5. Access - ownership or role check failed
  6. Validation - malformed input, rejected before accounting logic
  7. Store - unique-key violations, conflicts

USAGE:
  if errors.Is(err, core.ErrAlreadyClaimed) {
      // second activation of the same QR code
  }

SEE ALSO:
  - api/response.go: HTTP status mapping
*/
package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyClaimed is returned when a QR sub-claim (cashback or recycle)
	// is already set, or a rewarding transaction with the same idempotency
	// key exists.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrAlreadyCompleted is returned when a recycle request or withdrawal
	// has already been settled.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrExpired is returned when a QR code is past expiresAt.
	ErrExpired = errors.New("expired")

	// ErrInactive is returned for deactivated QR codes and closed collection points.
	ErrInactive = errors.New("inactive")

	ErrNoCashbackAvailable = errors.New("no cashback available")
	ErrNoRecycleReward     = errors.New("no recycle reward available")

	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a lifecycle state machine refuses a move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicate is returned by stores on unique-key violations
	// (QR code strings, user email/phone, idempotency keys).
	ErrDuplicate = errors.New("duplicate key")

	ErrConflict = errors.New("conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// ValidationError lists every field problem found in one input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, k := range sortedKeys(e.Fields) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records a field problem. Returns the receiver for chaining.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
	return e
}

// OrNil returns nil when no field problem was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid is shorthand for a single-field validation error.
func Invalid(field, msg string) error {
	return (&ValidationError{}).Add(field, msg)
}

// TransitionError names the refused state change.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to the caller's input or state.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyClaimed, ErrAlreadyCompleted, ErrExpired, ErrInactive,
		ErrNoCashbackAvailable, ErrNoRecycleReward, ErrInsufficientBalance,
		ErrForbidden, ErrUnauthorized, ErrValidation, ErrInvalidTransition,
		ErrDuplicate, ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
