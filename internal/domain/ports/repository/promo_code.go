package repository

import (
	"context"
	"time"

	"expbox-billing/internal/domain/model"
)

// PromoCodeRepository is the port for the promo code ledger.
type PromoCodeRepository interface {
	// Save inserts a new code. domain.ErrAlreadyExists on a code collision.
	Save(ctx context.Context, tx Tx, code *model.PromoCode) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PromoCode, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PromoCode, error)
	// RedeemOnce re-checks redeemability for durationID at now and increments
	// used_count in one atomic statement, returning the discount percent.
	// Returns domain.ErrNotFound for an unknown code and
	// domain.ErrPromoRedemptionFailed when the code exists but the conditions
	// no longer hold (inactive, expired, wrong duration, or cap reached).
	RedeemOnce(ctx context.Context, tx Tx, code, durationID string, now time.Time) (int, error)
	// SetActive toggles the administrator kill switch; used_count is untouched.
	SetActive(ctx context.Context, tx Tx, id string, active bool) error
}
