package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"expbox-billing/internal/config"
	"expbox-billing/internal/infra/api"
	pg "expbox-billing/internal/infra/db/postgres"
	"expbox-billing/internal/infra/logging"
	"expbox-billing/internal/infra/metrics"
	red "expbox-billing/internal/infra/redis"
	"expbox-billing/internal/infra/sched"
	"expbox-billing/internal/infra/worker"
	"expbox-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	promoRepo := pg.NewPromoCodeRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	durationRepo := pg.NewDurationRepoCacheDecorator(pg.NewDurationRepo(pool), redisClient)
	tm := pg.NewTxManager(pool)

	// ---- Use cases ----
	promoUC := usecase.NewPromoUseCase(promoRepo, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, durationRepo, cfg.Billing.GraceWindow(), logger)
	paymentUC := usecase.NewPaymentUseCase(payRepo, durationRepo, promoUC, logger)
	reconcileUC := usecase.NewReconcileUseCase(payRepo, paymentUC, promoUC, subUC, tm, logger)

	// ---- Metrics ----
	metrics.MustRegister()
	go reportPoolStats(ctx, pool)

	// ---- Workers ----
	pool4 := worker.NewPool(4, logger)
	pool4.Start(ctx)
	defer pool4.Stop()

	sweeper := sched.NewSweepWorker(cfg.Scheduler.SweepInterval, subUC, locker, logger)
	go func() { _ = sweeper.Run(ctx) }()

	reconciler := sched.NewOutcomeReconciler(reconcileUC, payRepo, pool4, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.ReconcileStaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP ----
	server := api.NewServer(paymentUC, reconcileUC, promoUC, subUC, cfg.Admin.APIKey, logger)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}

func reportPoolStats(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		}
	}
}
