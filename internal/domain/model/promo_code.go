package model

import (
	"time"

	"expbox-billing/internal/domain"
)

type PromoKind string

const (
	PromoKindAdmin PromoKind = "admin" // created by an administrator
	PromoKindGift  PromoKind = "gift"  // minted by a confirmed gift payment
)

// PromoCode grants a percentage discount on one box duration. UsedCount is
// the authoritative activation counter; it only ever moves forward and is
// incremented by the repository in the same statement that re-checks
// redeemability.
type PromoCode struct {
	ID              string
	Code            string
	Kind            PromoKind
	DurationID      string
	DiscountPercent int
	MaxActivations  *int // nil means unlimited
	UsedCount       int
	ExpiresAt       *time.Time
	IsActive        bool
	CreatedAt       time.Time
	Version         int
}

const (
	minCodeLen = 3
	maxCodeLen = 50
)

func validCodeFormat(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, c := range code {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// NewAdminPromoCode validates and constructs an administrator-created code.
func NewAdminPromoCode(id, code, durationID string, discountPercent int, maxActivations *int, expiresAt *time.Time) (*PromoCode, error) {
	if id == "" || durationID == "" || !validCodeFormat(code) {
		return nil, domain.ErrInvalidArgument
	}
	if discountPercent < 0 || discountPercent > 100 {
		return nil, domain.ErrInvalidArgument
	}
	if maxActivations != nil && *maxActivations <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PromoCode{
		ID:              id,
		Code:            code,
		Kind:            PromoKindAdmin,
		DurationID:      durationID,
		DiscountPercent: discountPercent,
		MaxActivations:  maxActivations,
		ExpiresAt:       expiresAt,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}, nil
}

// NewGiftPromoCode constructs a single-activation gift code.
func NewGiftPromoCode(id, code, durationID string, discountPercent int) (*PromoCode, error) {
	if id == "" || durationID == "" || !validCodeFormat(code) {
		return nil, domain.ErrInvalidArgument
	}
	if discountPercent < 0 || discountPercent > 100 {
		return nil, domain.ErrInvalidArgument
	}
	one := 1
	return &PromoCode{
		ID:              id,
		Code:            code,
		Kind:            PromoKindGift,
		DurationID:      durationID,
		DiscountPercent: discountPercent,
		MaxActivations:  &one,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}, nil
}

// Redeemable reports whether the code can be redeemed for durationID at now.
// This check is advisory; the repository re-evaluates the same conditions
// atomically with the counter increment.
func (p *PromoCode) Redeemable(durationID string, now time.Time) (bool, domain.PromoReason) {
	if !p.IsActive {
		return false, domain.PromoReasonInactive
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false, domain.PromoReasonExpired
	}
	if p.DurationID != durationID {
		return false, domain.PromoReasonDurationMismatch
	}
	if p.MaxActivations != nil && p.UsedCount >= *p.MaxActivations {
		return false, domain.PromoReasonLimitReached
	}
	return true, ""
}
