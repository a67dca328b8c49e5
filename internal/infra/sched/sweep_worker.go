package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"expbox-billing/internal/domain"
	"expbox-billing/internal/infra/metrics"
	red "expbox-billing/internal/infra/redis"
	"expbox-billing/internal/usecase"
)

const sweepLockKey = "sweep:subscriptions"

// SweepWorker periodically advances the subscription clock: overdue Active
// rows enter grace, elapsed Grace rows expire. The redis lock keeps multiple
// instances from sweeping the same tick; the sweep itself is idempotent so
// a lost lock only costs duplicate reads.
type SweepWorker struct {
	interval time.Duration
	subUC    usecase.SubscriptionUseCase
	locker   red.Locker
	log      *zerolog.Logger
}

func NewSweepWorker(interval time.Duration, subUC usecase.SubscriptionUseCase, locker red.Locker, logger *zerolog.Logger) *SweepWorker {
	l := logger.With().Str("component", "SweepWorker").Logger()
	return &SweepWorker{interval: interval, subUC: subUC, locker: locker, log: &l}
}

func (w *SweepWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting sweep worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping sweep worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SweepWorker) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, sweepLockKey, w.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Warn().Err(err).Msg("sweep lock error")
		}
		return
	}
	defer func() { _ = w.locker.Unlock(ctx, sweepLockKey, token) }()

	n, err := w.subUC.AdvanceClock(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("sweep error")
	}
	metrics.AddSweepTransitions(n)
}
