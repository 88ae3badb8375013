package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// キーごとの固定窓カウンタ（実装はRedis）
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func KeyByIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// AuthJWTの後で使う。user_idが無ければIPで数える。
func KeyByUser(c echo.Context) string {
	if id, ok := c.Get(CtxUserIDKey).(int64); ok && id > 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return KeyByIP(c)
}

// limiterがnilなら制限しない。Redisの障害時は通す（fail open）。
func RateLimit(limiter RateLimiter, keyFn func(c echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			key := c.Path() + "|" + keyFn(c)

			ok, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				slog.WarnContext(c.Request().Context(), "rate limiter unavailable",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				return next(c)
			}
			if !ok {
				return c.JSON(http.StatusTooManyRequests, errorJSON("rate limited"))
			}
			return next(c)
		}
	}
}
