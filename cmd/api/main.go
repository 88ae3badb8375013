package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	"github.com/rs-labo46/ec-settlement/internal/gateway"
	"github.com/rs-labo46/ec-settlement/internal/handler"
	"github.com/rs-labo46/ec-settlement/internal/infra/cache"
	"github.com/rs-labo46/ec-settlement/internal/infra/db"
	"github.com/rs-labo46/ec-settlement/internal/infra/logging"
	"github.com/rs-labo46/ec-settlement/internal/infra/mail"
	"github.com/rs-labo46/ec-settlement/internal/infra/messaging"
	infraRepo "github.com/rs-labo46/ec-settlement/internal/infra/repository"
	"github.com/rs-labo46/ec-settlement/internal/middleware"
	"github.com/rs-labo46/ec-settlement/internal/pricing"
	"github.com/rs-labo46/ec-settlement/internal/server"
	"github.com/rs-labo46/ec-settlement/internal/usecase"
	"github.com/rs-labo46/ec-settlement/internal/validator"

	"github.com/joho/godotenv"
)

func main() {
	//.envは無くてもよい
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		slog.Error("db connect", "error", err)
		os.Exit(1)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.ShippingZone{},
		&model.Order{},
		&model.OrderItem{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		slog.Error("db handle", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	//Repository（GORM実装）
	txm := infraRepo.NewTxManagerGorm(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	//レート制限（Redisが無ければ無効）
	var limiter middleware.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := cache.Ping(ctx, rdb); err != nil {
			slog.Warn("redis unavailable, rate limit fails open", "error", err)
		}
		limiter = cache.NewRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute)
	}

	//確定通知（Kafkaが無ければログだけ）
	var notifier usecase.Notifier = mail.NewLogMailer(slog.Default())
	var producer *messaging.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = messaging.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024)
		producer.Start(ctx)
		notifier = messaging.NewKafkaNotifier(producer, "settlement-api")
	}

	//usecase
	merchant := gateway.Merchant{
		FormURL:     cfg.GatewayFormURL,
		ProductCode: cfg.GatewayProductCode,
		SecretKey:   cfg.GatewaySecretKey,
		SuccessURL:  cfg.GatewaySuccessURL,
		FailureURL:  cfg.GatewayFailureURL,
	}
	clock := usecase.SystemClock{}

	checkoutUC := usecase.NewCheckoutUsecase(
		txm,
		pricing.NewCalculator(cfg.TaxRate),
		merchant,
		validator.NewCheckoutValidator(),
		usecase.UUIDGenerator{},
		clock,
	)
	settlementUC := usecase.NewSettlementUsecase(txm, notifier, clock, usecase.SettlementPolicy{
		Production:       cfg.IsProduction(),
		AllowedIPs:       cfg.GatewayAllowedIPs,
		MaxSkew:          cfg.CallbackMaxSkew,
		RequireTimestamp: cfg.RequireCallbackTimestamp,
		SecretKey:        cfg.GatewaySecretKey,
	})
	orderUC := usecase.NewOrderUsecase(txm)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, auditRepo)

	//Handler
	h := server.Handlers{
		Health:     handler.NewHealthHandler(sqlDB),
		Checkout:   handler.NewCheckoutHandler(checkoutUC),
		Orders:     handler.NewOrderHandler(orderUC),
		Payments:   handler.NewPaymentHandler(settlementUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	}

	e := server.New(cfg, h, userRepo, limiter)
	if err := server.Run(ctx, e, listenAddr(cfg.Port)); err != nil {
		slog.Error("http server", "error", err)
	}

	//残りのイベントを流してから終わる
	if producer != nil {
		producer.Close()
		producer.WaitClosed()
	}
	slog.Info("api stopped")
}

func listenAddr(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
