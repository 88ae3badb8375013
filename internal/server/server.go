package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/middleware"
	"github.com/rs-labo46/ec-settlement/internal/repository"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// New はミドルウェアとルートを組んだechoを返す
func New(cfg config.Config, h Handlers, userRepo repository.UserRepository, limiter middleware.RateLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg.TrustProxyHeaders)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger())

	RegisterRoutes(e, cfg, h, userRepo, limiter)
	return e
}

// 送信元IPの判定（許可リストの照合に使う）
func ipExtractor(trustProxy bool) echo.IPExtractor {
	if trustProxy {
		return echo.ExtractIPFromXFFHeader(echo.TrustPrivateNet(true), echo.TrustLoopback(true))
	}
	return echo.ExtractIPDirect()
}

func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
			}
			ctx := c.Request().Context()
			if v.Error != nil {
				slog.ErrorContext(ctx, "request", append(attrs, slog.String("error", v.Error.Error()))...)
				return nil
			}
			slog.InfoContext(ctx, "request", attrs...)
			return nil
		},
	})
}

// Run はctxが終わるまでサーバーを動かし、終わったら止める
func Run(ctx context.Context, e *echo.Echo, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("http shutting down")
	return e.Shutdown(sctx)
}
