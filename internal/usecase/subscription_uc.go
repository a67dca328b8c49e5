package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/model"
	"expbox-billing/internal/domain/ports/repository"
	"expbox-billing/internal/infra/logging"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// ActivateOrRenew creates the client's subscription or extends the
	// existing Active-or-Grace one by the paid duration. Callers dedupe via
	// the originating payment's outcome flags, not here.
	ActivateOrRenew(ctx context.Context, tx repository.Tx, clientID, durationID, premiumLevelID string, delivery model.DeliveryInfo, now time.Time) (*model.Subscription, error)
	// Cancel moves a non-terminal subscription to cancelled.
	Cancel(ctx context.Context, id string) error
	// AdvanceClock sweeps overdue subscriptions into grace and elapsed grace
	// into expired. Returns the number of transitions applied.
	AdvanceClock(ctx context.Context, now time.Time) (int, error)
	// Override lets an administrator force a status, bypassing the payment
	// trigger. It still goes through the versioned write path.
	Override(ctx context.Context, id string, status model.SubscriptionStatus) (*model.Subscription, error)
	FindCurrentByClient(ctx context.Context, clientID string) (*model.Subscription, error)
	ListByClient(ctx context.Context, clientID string) ([]*model.Subscription, error)
	// ListExpiring returns active subscriptions whose next payment falls
	// due within the horizon, overdue rows included.
	ListExpiring(ctx context.Context, now time.Time, horizon time.Duration) ([]*model.Subscription, error)
}

type subscriptionUC struct {
	subs        repository.SubscriptionRepository
	durations   repository.DurationCatalogRepository
	graceWindow time.Duration
	log         *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, durations repository.DurationCatalogRepository, graceWindow time.Duration, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUseCase").Logger()
	return &subscriptionUC{subs: subs, durations: durations, graceWindow: graceWindow, log: &l}
}

// writeAttempts bounds optimistic retries on version conflicts.
const writeAttempts = 3

func (uc *subscriptionUC) ActivateOrRenew(ctx context.Context, tx repository.Tx, clientID, durationID, premiumLevelID string, delivery model.DeliveryInfo, now time.Time) (*model.Subscription, error) {
	d, err := uc.durations.FindByID(ctx, tx, durationID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < writeAttempts; attempt++ {
		cur, err := uc.subs.FindCurrentByClient(ctx, tx, clientID)
		switch {
		case err == nil:
			if err := cur.Renew(durationID, d.Months, now); err != nil {
				return nil, err
			}
			if err := uc.subs.Update(ctx, tx, cur); err != nil {
				if errors.Is(err, domain.ErrVersionConflict) {
					continue
				}
				return nil, err
			}
			uc.log.Info().Str("subscription_id", cur.ID).Str("client_id", clientID).Time("next_payment", cur.NextPaymentDate).Msg("subscription renewed")
			return cur, nil

		case errors.Is(err, domain.ErrNotFound):
			sub, err := model.NewSubscription(uuid.NewString(), clientID, durationID, premiumLevelID, d.Months, delivery, now)
			if err != nil {
				return nil, err
			}
			if err := uc.subs.Save(ctx, tx, sub); err != nil {
				if errors.Is(err, domain.ErrAlreadyExists) {
					// lost the creation race; renew the winner instead
					continue
				}
				return nil, err
			}
			uc.log.Info().Str("subscription_id", sub.ID).Str("client_id", clientID).Msg("subscription activated")
			return sub, nil

		default:
			return nil, err
		}
	}
	return nil, domain.ErrVersionConflict
}

func (uc *subscriptionUC) Cancel(ctx context.Context, id string) error {
	for attempt := 0; attempt < writeAttempts; attempt++ {
		sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			return err
		}
		if sub.IsTerminal() {
			return domain.ErrAlreadyTerminal
		}
		sub.Status = model.SubscriptionStatusCancelled
		sub.UpdatedAt = time.Now()
		if err := uc.subs.Update(ctx, repository.NoTX, sub); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return err
		}
		uc.log.Info().Str("subscription_id", id).Msg("subscription cancelled")
		return nil
	}
	return domain.ErrVersionConflict
}

// sweepBatch caps how many rows one AdvanceClock pass touches per phase.
const sweepBatch = 500

func (uc *subscriptionUC) AdvanceClock(ctx context.Context, now time.Time) (int, error) {
	defer logging.TraceDuration(uc.log, "SubscriptionUC.AdvanceClock")()

	moved := 0

	due, err := uc.subs.ListDue(ctx, repository.NoTX, now, sweepBatch)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return moved, err
	}
	for _, sub := range due {
		if err := sub.EnterGrace(now); err != nil {
			continue
		}
		if err := uc.subs.Update(ctx, repository.NoTX, sub); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				// a renewal beat the sweep to this row; the renewal wins
				continue
			}
			return moved, err
		}
		moved++
	}

	cutoff := now.Add(-uc.graceWindow)
	elapsed, err := uc.subs.ListGraceElapsed(ctx, repository.NoTX, cutoff, sweepBatch)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return moved, err
	}
	for _, sub := range elapsed {
		if err := sub.Expire(now); err != nil {
			continue
		}
		if err := uc.subs.Update(ctx, repository.NoTX, sub); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return moved, err
		}
		moved++
	}

	if moved > 0 {
		uc.log.Info().Int("transitions", moved).Time("now", now).Msg("sweep applied")
	}
	return moved, nil
}

func (uc *subscriptionUC) Override(ctx context.Context, id string, status model.SubscriptionStatus) (*model.Subscription, error) {
	switch status {
	case model.SubscriptionStatusActive, model.SubscriptionStatusGrace,
		model.SubscriptionStatusExpired, model.SubscriptionStatusCancelled:
	default:
		return nil, domain.ErrInvalidArgument
	}
	for attempt := 0; attempt < writeAttempts; attempt++ {
		sub, err := uc.subs.FindByID(ctx, repository.NoTX, id)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		sub.Status = status
		sub.UpdatedAt = now
		if status == model.SubscriptionStatusGrace {
			if sub.GraceSince == nil {
				sub.GraceSince = &now
			}
		} else {
			sub.GraceSince = nil
		}
		if err := uc.subs.Update(ctx, repository.NoTX, sub); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		uc.log.Warn().Str("subscription_id", id).Str("status", string(status)).Msg("administrator status override")
		return sub, nil
	}
	return nil, domain.ErrVersionConflict
}

func (uc *subscriptionUC) FindCurrentByClient(ctx context.Context, clientID string) (*model.Subscription, error) {
	return uc.subs.FindCurrentByClient(ctx, repository.NoTX, clientID)
}

func (uc *subscriptionUC) ListByClient(ctx context.Context, clientID string) ([]*model.Subscription, error) {
	return uc.subs.ListByClient(ctx, repository.NoTX, clientID)
}

func (uc *subscriptionUC) ListExpiring(ctx context.Context, now time.Time, horizon time.Duration) ([]*model.Subscription, error) {
	return uc.subs.ListDue(ctx, repository.NoTX, now.Add(horizon), sweepBatch)
}
