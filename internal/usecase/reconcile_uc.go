package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
	"expbox-billing/internal/infra/logging"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase turns a confirmed payment into its business effect
// exactly once. It is invoked from the gateway webhook, the client status
// poll, and the stale-payment sweep; all three may fire for the same order
// concurrently and must converge on a single application.
type ReconcileUseCase interface {
	OnConfirmed(ctx context.Context, orderID string) (*model.Payment, error)
}

type reconcileUC struct {
	payments  repository.PaymentRepository
	paymentUC PaymentUseCase
	promo     PromoUseCase
	subs      SubscriptionUseCase
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewReconcileUseCase(payments repository.PaymentRepository, paymentUC PaymentUseCase, promo PromoUseCase, subs SubscriptionUseCase, tm repository.TransactionManager, logger *zerolog.Logger) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUseCase").Logger()
	return &reconcileUC{payments: payments, paymentUC: paymentUC, promo: promo, subs: subs, tm: tm, log: &l}
}

func (uc *reconcileUC) OnConfirmed(ctx context.Context, orderID string) (*model.Payment, error) {
	defer logging.TraceDuration(uc.log, "ReconcileUC.OnConfirmed")()

	p, err := uc.payments.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	// Idempotency fast path: never touch a collaborator once applied.
	if p.Outcome.Applied() {
		return p, nil
	}
	if p.Status != model.PaymentStatusConfirmed {
		// not actionable yet; the caller treats this as pending
		return p, nil
	}

	now := time.Now()
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Re-read under the row lock; a concurrent invocation may have
		// applied the outcome between the fast path and here.
		cur, err := uc.payments.FindByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if cur.Outcome.Applied() || cur.Status != model.PaymentStatusConfirmed {
			return nil
		}

		discount := 0
		if cur.PromoCode != nil {
			// The redeem is the first side effect on purpose: when it fails
			// the transaction aborts before anything else exists.
			discount, err = uc.promo.Redeem(ctx, tx, *cur.PromoCode, cur.DurationID, now)
			if err != nil {
				return err
			}
		}

		var outcome model.PaymentOutcome
		switch cur.Type {
		case model.PaymentTypeGift:
			gift, err := uc.promo.MintGiftCode(ctx, tx, cur.DurationID, discount)
			if err != nil {
				return err
			}
			outcome = model.PaymentOutcome{GiftPromocodeCreated: true, GiftCode: &gift.Code}
		case model.PaymentTypeSubscription:
			sub, err := uc.subs.ActivateOrRenew(ctx, tx, cur.ClientID, cur.DurationID, cur.PremiumLevelID, cur.Delivery, now)
			if err != nil {
				return err
			}
			outcome = model.PaymentOutcome{SubscriptionActivated: true, SubscriptionID: &sub.ID}
		}

		return uc.paymentUC.MarkOutcome(ctx, tx, orderID, outcome)
	})
	if err != nil {
		uc.log.Error().Err(err).Str("order_id", orderID).Msg("reconciliation failed")
		return nil, err
	}

	applied, err := uc.payments.FindByOrderID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	if applied.Outcome.Applied() {
		uc.log.Info().Str("order_id", orderID).Bool("subscription", applied.Outcome.SubscriptionActivated).Bool("gift", applied.Outcome.GiftPromocodeCreated).Msg("payment reconciled")
	}
	return applied, nil
}
