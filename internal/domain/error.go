package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Payment record errors
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrOutcomeAlreadySet = errors.New("payment outcome already set")

	// Subscription lifecycle errors
	ErrAlreadyTerminal = errors.New("subscription already terminal")
	ErrVersionConflict = errors.New("concurrent modification detected")

	// Promo ledger errors
	ErrPromoInvalid = errors.New("promo code invalid")
	// ErrPromoRedemptionFailed means the code passed an earlier check but the
	// atomic redeem found the conditions no longer hold. The payment was
	// already taken, so callers must surface this distinctly instead of
	// falling back to full price.
	ErrPromoRedemptionFailed = errors.New("promo code redemption failed")

	// Infrastructure errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
	ErrLockNotAcquired    = errors.New("distributed lock not acquired")
)

// PromoReason is the closed set of reasons a promo code is not redeemable.
type PromoReason string

const (
	PromoReasonNotFound         PromoReason = "not_found"
	PromoReasonInactive         PromoReason = "inactive"
	PromoReasonExpired          PromoReason = "expired"
	PromoReasonDurationMismatch PromoReason = "duration_mismatch"
	PromoReasonLimitReached     PromoReason = "activation_limit_reached"
)

// PromoInvalidError carries the sub-reason for a failed promo validation.
// It matches ErrPromoInvalid under errors.Is.
type PromoInvalidError struct {
	Code   string
	Reason PromoReason
}

func (e *PromoInvalidError) Error() string {
	return fmt.Sprintf("promo code invalid: %s", e.Reason)
}

func (e *PromoInvalidError) Unwrap() error { return ErrPromoInvalid }
