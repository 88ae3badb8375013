package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs-labo46/ec-settlement/internal/gateway"
	"github.com/rs-labo46/ec-settlement/internal/middleware"
	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	HeaderGatewayTimestamp = "X-Gateway-Timestamp"
	maxCallbackBody        = 64 << 10
)

// 決済ゲートウェイからのコールバック（認証トークンなし）
type PaymentHandler struct {
	uc *usecase.SettlementUsecase
}

func NewPaymentHandler(uc *usecase.SettlementUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, limiter middleware.RateLimiter) {
	g := e.Group("/payments/esewa")
	g.Use(middleware.RateLimit(limiter, middleware.KeyByIP))

	//成功リダイレクト（?data=...）とサーバー間通知の両方を受ける
	g.GET("/callback", h.callback)
	g.POST("/callback", h.callback)

	//失敗リダイレクトは注文を変えない（PENDINGのまま期限切れを待つ）
	g.GET("/failure", h.failure)
}

func (h *PaymentHandler) callback(c echo.Context) error {
	fields, err := callbackFields(c)
	if err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.uc.Settle(c.Request().Context(), usecase.SettlementInput{
		RemoteIP:        c.RealIP(),
		TimestampHeader: strings.TrimSpace(c.Request().Header.Get(HeaderGatewayTimestamp)),
		Fields:          fields,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) failure(c echo.Context) error {
	ref := strings.TrimSpace(c.QueryParam("transaction_uuid"))
	slog.InfoContext(c.Request().Context(), "payment failure redirect",
		"transaction_ref", ref, "remote_ip", c.RealIP())

	return c.JSON(http.StatusOK, SuccessResponse{Message: usecase.MessageNotCompleted})
}

// クエリ・フォーム・JSONのどれで来ても文字列のmapにする
func callbackFields(c echo.Context) (map[string]string, error) {
	fields := map[string]string{}
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	if c.Request().Method != http.MethodPost {
		return fields, nil
	}

	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
		if err != nil {
			return nil, err
		}
		parsed, err := gateway.FieldsFromJSON(body)
		if err != nil {
			return nil, err
		}
		for k, v := range parsed {
			fields[k] = v
		}
		return fields, nil
	}

	form, err := c.FormParams()
	if err != nil {
		return nil, err
	}
	for k, v := range form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}
