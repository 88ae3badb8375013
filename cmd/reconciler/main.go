package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/infra/db"
	"github.com/rs-labo46/ec-settlement/internal/infra/logging"
	infraRepo "github.com/rs-labo46/ec-settlement/internal/infra/repository"
	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/joho/godotenv"
)

// 期限切れのPENDING注文を定期的にFAILEDにする
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gormDB, err := db.Connect(cfg)
	if err != nil {
		slog.Error("db connect", "error", err)
		os.Exit(1)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		slog.Error("db handle", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	uc := usecase.NewReconcileUsecase(infraRepo.NewTxManagerGorm(gormDB), usecase.SystemClock{}, cfg.PendingOrderTTL)

	slog.Info("reconciler started", "interval", cfg.ReconcileInterval.String(), "ttl", cfg.PendingOrderTTL.String())
	run(ctx, uc, cfg.ReconcileInterval)
	slog.Info("reconciler stopped")
}

func run(ctx context.Context, uc *usecase.ReconcileUsecase, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		res, err := uc.ExpireStalePending(ctx)
		if err != nil {
			slog.Error("reconcile failed", "error", err)
		} else if res.Expired > 0 {
			slog.Info("stale orders expired", "scanned", res.Scanned, "expired", res.Expired)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
