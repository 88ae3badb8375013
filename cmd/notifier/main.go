package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/infra/cache"
	"github.com/rs-labo46/ec-settlement/internal/infra/logging"
	"github.com/rs-labo46/ec-settlement/internal/infra/mail"
	"github.com/rs-labo46/ec-settlement/internal/infra/messaging"

	"github.com/joho/godotenv"
)

// order.completedを読んで確定メールを送る
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		slog.Error("KAFKA_BROKERS is required for notifier")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	//重複排除（Redisが無ければ少なくとも1回配信）
	var dedup messaging.Claimer
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := cache.Ping(ctx, rdb); err != nil {
			slog.Warn("redis unavailable", "error", err)
		}
		dedup = cache.NewDeduper(rdb, "notifier")
	}

	h := messaging.NewConfirmationHandler(dedup, mail.NewLogMailer(slog.Default()))

	workers := workerCount(os.Getenv("NOTIFIER_WORKERS"), 4)
	cons := messaging.NewConsumer(cfg.KafkaBrokers, cfg.NotifyConsumerGrp, cfg.NotifyTopic, workers)

	slog.Info("notifier started", "group", cfg.NotifyConsumerGrp, "topic", cfg.NotifyTopic, "workers", workers)
	if err := cons.Start(ctx, h.Handle); err != nil {
		slog.Error("consumer exit", "error", err)
		os.Exit(1)
	}
	slog.Info("notifier stopped")
}

func workerCount(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
