package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/domain/ports/repository"
	"expbox-billing/internal/infra/metrics"
	"expbox-billing/internal/infra/worker"
	"expbox-billing/internal/usecase"
)

// OutcomeReconciler scans for payments that reached CONFIRMED but never had
// their business effect applied (a webhook lost mid-flight, a crash between
// confirm and commit) and replays them through OnConfirmed. Idempotency in
// the coordinator makes re-scanning the same payment harmless.
type OutcomeReconciler struct {
	reconcile  usecase.ReconcileUseCase
	payments   repository.PaymentRepository
	pool       *worker.Pool
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewOutcomeReconciler(reconcile usecase.ReconcileUseCase, payments repository.PaymentRepository, pool *worker.Pool, interval, staleAfter time.Duration, logger *zerolog.Logger) *OutcomeReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "OutcomeReconciler").Logger()
	return &OutcomeReconciler{
		reconcile:  reconcile,
		payments:   payments,
		pool:       pool,
		interval:   interval,
		staleAfter: staleAfter,
		log:        &l,
	}
}

func (w *OutcomeReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting outcome reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping outcome reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *OutcomeReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.payments.ListConfirmedUnapplied(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale confirmed payments")
		return
	}
	for _, p := range stale {
		orderID := p.OrderID
		task := func(ctx context.Context) error {
			_, err := w.reconcile.OnConfirmed(ctx, orderID)
			if err != nil {
				metrics.IncReconciliation("failed")
				if errors.Is(err, domain.ErrPromoRedemptionFailed) {
					// needs an operator: money taken, discount basis gone
					w.log.Error().Str("order_id", orderID).Msg("stale payment blocked on promo redemption")
					return nil
				}
				return err
			}
			metrics.IncReconciliation("applied")
			w.log.Info().Str("order_id", orderID).Msg("stale payment reconciled")
			return nil
		}
		if err := w.pool.Submit(task); err != nil {
			w.log.Warn().Err(err).Msg("reconcile backlog full, deferring to next tick")
			return
		}
	}
}
