package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
	"expbox-billing/internal/infra/logging"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// CheckoutParams is the storefront's checkout request.
type CheckoutParams struct {
	ClientID       string
	Type           model.PaymentType
	DurationID     string
	PremiumLevelID string
	PromoCode      *string
	Delivery       model.DeliveryInfo
}

type PaymentUseCase interface {
	// Checkout prices the duration (previewing any promo discount) and
	// creates the NEW payment with a fresh order id.
	Checkout(ctx context.Context, params CheckoutParams) (*model.Payment, error)
	// TransitionTo enforces the forward-only status graph. Re-delivering the
	// current status is a harmless no-op; outcome flags are never touched.
	TransitionTo(ctx context.Context, orderID string, to model.PaymentStatus) (*model.Payment, error)
	// MarkOutcome applies the outcome flags exactly once. An identical
	// replay returns nil; a conflicting one fails with ErrOutcomeAlreadySet.
	MarkOutcome(ctx context.Context, tx repository.Tx, orderID string, outcome model.PaymentOutcome) error
	FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error)
}

type paymentUC struct {
	payments  repository.PaymentRepository
	durations repository.DurationCatalogRepository
	promo     PromoUseCase
	log       *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, durations repository.DurationCatalogRepository, promo PromoUseCase, logger *zerolog.Logger) *paymentUC {
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &paymentUC{payments: payments, durations: durations, promo: promo, log: &l}
}

func (uc *paymentUC) Checkout(ctx context.Context, params CheckoutParams) (*model.Payment, error) {
	defer logging.TraceDuration(uc.log, "PaymentUC.Checkout")()

	now := time.Now()
	d, err := uc.durations.FindByID(ctx, repository.NoTX, params.DurationID)
	if err != nil {
		return nil, err
	}

	discount := 0
	if params.PromoCode != nil {
		res, err := uc.promo.Validate(ctx, *params.PromoCode, params.DurationID, now)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, &domain.PromoInvalidError{Code: *params.PromoCode, Reason: res.Reason}
		}
		discount = res.DiscountPercent
	}

	p, err := model.NewPayment(uuid.NewString(), ulid.Make().String(), params.ClientID, params.Type, d.DiscountedPrice(discount), d.Currency, params.DurationID, now)
	if err != nil {
		return nil, err
	}
	p.PremiumLevelID = params.PremiumLevelID
	p.PromoCode = params.PromoCode
	p.Delivery = params.Delivery

	if err := uc.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("order_id", p.OrderID).Str("client_id", p.ClientID).Int64("amount", p.Amount).Msg("checkout created")
	return p, nil
}

func (uc *paymentUC) TransitionTo(ctx context.Context, orderID string, to model.PaymentStatus) (*model.Payment, error) {
	p, err := uc.payments.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status == to {
		// redelivered notification
		return p, nil
	}
	if !p.Status.CanTransitionTo(to) {
		return nil, domain.ErrInvalidTransition
	}

	now := time.Now()
	if err := uc.payments.UpdateStatus(ctx, repository.NoTX, orderID, p.Status, to, now); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			// a concurrent transition won; report the stored state
			cur, ferr := uc.payments.FindByOrderID(ctx, repository.NoTX, orderID)
			if ferr == nil && cur.Status == to {
				return cur, nil
			}
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}

	p.Status = to
	p.UpdatedAt = now
	if to == model.PaymentStatusConfirmed {
		p.ConfirmedAt = &now
	}
	uc.log.Info().Str("order_id", orderID).Str("status", string(to)).Msg("payment status transition")
	return p, nil
}

func (uc *paymentUC) MarkOutcome(ctx context.Context, tx repository.Tx, orderID string, outcome model.PaymentOutcome) error {
	if !outcome.Applied() {
		return domain.ErrInvalidArgument
	}
	if outcome.SubscriptionActivated && outcome.GiftPromocodeCreated {
		return domain.ErrInvalidArgument
	}

	if err := uc.payments.MarkOutcome(ctx, tx, orderID, outcome); err != nil {
		if errors.Is(err, domain.ErrOutcomeAlreadySet) {
			cur, ferr := uc.payments.FindByOrderID(ctx, tx, orderID)
			if ferr == nil && cur.Outcome.Equal(outcome) {
				// identical replay
				return nil
			}
		}
		return err
	}
	return nil
}

func (uc *paymentUC) FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	return uc.payments.FindByOrderID(ctx, repository.NoTX, orderID)
}
