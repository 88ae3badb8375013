package middleware

import (
	"net/http"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"

	"github.com/labstack/echo/v4"
)

// 突合APIは管理者だけ
func AdminRoleGuard() echo.MiddlewareFunc {
	return RequireRole(model.RoleAdmin)
}

// contextのroleがrolesのどれかなら通す
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := principalFrom(c)
			if !ok || p.Role == "" {
				return deny(c, http.StatusUnauthorized, "unauthorized")
			}
			if !allowed[p.Role] {
				return deny(c, http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}
