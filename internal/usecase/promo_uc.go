package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ PromoUseCase = (*promoUC)(nil)

// ValidationResult is the advisory answer to "can this code be redeemed".
// Only Redeem is authoritative; a valid result here can still lose the race.
type ValidationResult struct {
	Valid           bool
	DiscountPercent int
	Reason          domain.PromoReason // set when Valid is false
}

type PromoUseCase interface {
	// Validate checks redeemability without mutating anything (UX preview).
	Validate(ctx context.Context, code, durationID string, now time.Time) (*ValidationResult, error)
	// Redeem atomically consumes one activation and returns the discount
	// percent. domain.ErrPromoRedemptionFailed when the code exists but can
	// no longer be redeemed.
	Redeem(ctx context.Context, tx repository.Tx, code, durationID string, now time.Time) (int, error)
	// MintGiftCode creates a fresh single-activation gift code.
	MintGiftCode(ctx context.Context, tx repository.Tx, durationID string, discountPercent int) (*model.PromoCode, error)
	CreateAdminCode(ctx context.Context, code, durationID string, discountPercent int, maxActivations *int, expiresAt *time.Time) (*model.PromoCode, error)
	Deactivate(ctx context.Context, id string) error
	Reactivate(ctx context.Context, id string) error
	FindByCode(ctx context.Context, code string) (*model.PromoCode, error)
}

type promoUC struct {
	codes repository.PromoCodeRepository
	log   *zerolog.Logger
}

func NewPromoUseCase(codes repository.PromoCodeRepository, logger *zerolog.Logger) *promoUC {
	l := logger.With().Str("component", "PromoUseCase").Logger()
	return &promoUC{codes: codes, log: &l}
}

func (uc *promoUC) Validate(ctx context.Context, code, durationID string, now time.Time) (*ValidationResult, error) {
	pc, err := uc.codes.FindByCode(ctx, repository.NoTX, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &ValidationResult{Valid: false, Reason: domain.PromoReasonNotFound}, nil
		}
		return nil, err
	}
	if ok, reason := pc.Redeemable(durationID, now); !ok {
		return &ValidationResult{Valid: false, Reason: reason}, nil
	}
	return &ValidationResult{Valid: true, DiscountPercent: pc.DiscountPercent}, nil
}

func (uc *promoUC) Redeem(ctx context.Context, tx repository.Tx, code, durationID string, now time.Time) (int, error) {
	discount, err := uc.codes.RedeemOnce(ctx, tx, code, durationID, now)
	if err != nil {
		uc.log.Warn().Err(err).Str("code", code).Str("duration_id", durationID).Msg("redeem denied")
		return 0, err
	}
	uc.log.Info().Str("code", code).Int("discount_percent", discount).Msg("promo code redeemed")
	return discount, nil
}

// mintAttempts bounds collision retries; with a 32^12 code space more than
// one retry is already an anomaly worth logging.
const mintAttempts = 5

func (uc *promoUC) MintGiftCode(ctx context.Context, tx repository.Tx, durationID string, discountPercent int) (*model.PromoCode, error) {
	for attempt := 0; attempt < mintAttempts; attempt++ {
		code, err := generateGiftCode()
		if err != nil {
			return nil, err
		}
		pc, err := model.NewGiftPromoCode(uuid.NewString(), code, durationID, discountPercent)
		if err != nil {
			return nil, err
		}
		if err := uc.codes.Save(ctx, tx, pc); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				uc.log.Warn().Int("attempt", attempt+1).Msg("gift code collision, retrying")
				continue
			}
			return nil, err
		}
		return pc, nil
	}
	return nil, domain.ErrOperationFailed
}

func (uc *promoUC) CreateAdminCode(ctx context.Context, code, durationID string, discountPercent int, maxActivations *int, expiresAt *time.Time) (*model.PromoCode, error) {
	pc, err := model.NewAdminPromoCode(uuid.NewString(), code, durationID, discountPercent, maxActivations, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := uc.codes.Save(ctx, repository.NoTX, pc); err != nil {
		return nil, err
	}
	uc.log.Info().Str("code", code).Str("duration_id", durationID).Msg("admin promo code created")
	return pc, nil
}

func (uc *promoUC) Deactivate(ctx context.Context, id string) error {
	return uc.codes.SetActive(ctx, repository.NoTX, id, false)
}

func (uc *promoUC) Reactivate(ctx context.Context, id string) error {
	return uc.codes.SetActive(ctx, repository.NoTX, id, true)
}

func (uc *promoUC) FindByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	return uc.codes.FindByCode(ctx, repository.NoTX, code)
}

// generateGiftCode creates a secure random code from an alphabet that avoids
// ambiguous characters like O/0 and I/1.
func generateGiftCode() (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLength = 12

	buffer := make([]byte, codeLength)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}
	for i := 0; i < codeLength; i++ {
		buffer[i] = chars[int(buffer[i])%len(chars)]
	}
	return string(buffer), nil
}
