package server

import (
	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/handler"
	"github.com/rs-labo46/ec-settlement/internal/middleware"
	"github.com/rs-labo46/ec-settlement/internal/repository"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Health     *handler.HealthHandler
	Checkout   *handler.CheckoutHandler
	Orders     *handler.OrderHandler
	Payments   *handler.PaymentHandler
	AdminOrder *handler.AdminOrderHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers, userRepo repository.UserRepository, limiter middleware.RateLimiter) {
	//公開
	h.Health.RegisterRoutes(e)
	h.Payments.RegisterRoutes(e, limiter)

	//ログイン必須
	h.Checkout.RegisterRoutes(e, cfg, userRepo, limiter)
	h.Orders.RegisterRoutes(e, cfg, userRepo)

	//管理者
	h.AdminOrder.RegisterRoutes(e, cfg, userRepo)
}
