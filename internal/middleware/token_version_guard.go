package middleware

import (
	"log/slog"
	"net/http"

	"github.com/rs-labo46/ec-settlement/internal/repository"

	"github.com/labstack/echo/v4"
)

// 失効したトークン（tv不一致）は401、ブロック済みユーザーは403。
// チェックアウトとは別トランザクションなので、直後のブロックは次のリクエストから効く。
func TokenVersionGuard(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := principalFrom(c)
			if !ok {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}

			user, err := userRepo.FindByID(c.Request().Context(), p.UserID)
			if err != nil {
				slog.WarnContext(c.Request().Context(), "user lookup failed",
					slog.Int64("user_id", p.UserID),
					slog.String("error", err.Error()),
				)
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			if user == nil || user.TokenVersion != p.TokenVersion {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			if !user.IsActive {
				return deny(c, http.StatusForbidden, "user blocked")
			}

			return next(c)
		}
	}
}
