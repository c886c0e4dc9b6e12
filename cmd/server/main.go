package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	webAdapter "grain-ledger/internal/adapters/web"
	"grain-ledger/internal/ai"
	"grain-ledger/internal/app"
	"grain-ledger/internal/archive"
	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
	"grain-ledger/internal/logger"
	"grain-ledger/internal/metrics"
	"grain-ledger/internal/rates"
	"grain-ledger/internal/scheduler"
	"grain-ledger/internal/store"
)

func main() {
	log := logger.Must(logger.New())
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, cfg.Storage, logger.Named(log, "store"))
	if err != nil {
		return err
	}
	defer closeStore()

	rt := core.NewRuntime(st, cfg.Cash.RegisterName, logger.Named(log, "ledger"))
	if _, err := core.EnsureRegister(ctx, rt); err != nil {
		return err
	}

	m := metrics.New()

	var drafter ai.Drafter
	if cfg.AI.OpenAIKey != "" {
		drafter = ai.NewAgent(cfg.AI.OpenAIKey, cfg.AI.Model, logger.Named(log, "ai"))
	} else {
		log.Warn("OPENAI_API_KEY is not set; contract drafting is disabled")
	}

	var exporter *archive.Exporter
	if cfg.Archive.Enabled() {
		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return err
		}
		exporter, err = archive.New(ctx, cfg.Archive, loc, logger.Named(log, "archive"))
		if err != nil {
			return err
		}
	}

	svc := app.NewAppService(rt, drafter, rates.NewClient(cfg.Rates, logger.Named(log, "rates")), exporter, m)

	var archiver scheduler.Archiver
	if exporter != nil {
		archiver = svc
	}
	sched, err := scheduler.NewScheduler(cfg.Scheduler, svc, archiver, m, logger.Named(log, "scheduler"))
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           webAdapter.NewHandler(svc, m, logger.Named(log, "http"), cfg.Server.AllowedOrigins, cfg.Auth.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
