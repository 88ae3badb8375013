package handler

import (
	"net/http"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/config"
	"github.com/rs-labo46/ec-settlement/internal/middleware"
	"github.com/rs-labo46/ec-settlement/internal/repository"
	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 運用者向けの突合API
type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/settlements/:ref", h.trail)
	admin.GET("/audit-logs", h.auditLogs)
}

func (h *AdminOrderHandler) trail(c echo.Context) error {
	out, err := h.uc.Trail(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return badRequest(c, "invalid page")
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return badRequest(c, "invalid limit")
	}

	var fromPtr *time.Time
	if v := c.QueryParam("from"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "invalid from")
		}
		fromPtr = &tm
	}

	var toPtr *time.Time
	if v := c.QueryParam("to"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "invalid to")
		}
		toPtr = &tm
	}

	out, err := h.uc.ListAuditLogs(c.Request().Context(), usecase.AuditLogQuery{
		Kind:       c.QueryParam("kind"),
		Actor:      c.QueryParam("actor"),
		ResourceID: c.QueryParam("transaction_ref"),
		From:       fromPtr,
		To:         toPtr,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}
