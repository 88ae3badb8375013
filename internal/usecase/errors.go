package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// レスポンスに載せるエラーコード
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeInsufficientStock = "insufficient_stock"
	CodeConflict          = "conflict"
	CodeOrderNotPending   = "order_not_pending"
	CodeForbidden         = "forbidden"
	CodeStaleCallback     = "stale_callback"
	CodeInvalidSignature  = "invalid_signature"
	CodeAmountMismatch    = "amount_mismatch"
	CodeTransient         = "transient_error"
	CodeUnauthorized      = "unauthorized"
	CodeRateLimited       = "rate_limited"
)

// handlerでそのままHTTPレスポンスにするエラー
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, code string, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func ValidationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, CodeValidation, message)
}

func NotFoundError(message string) error {
	return NewHTTPError(http.StatusNotFound, CodeNotFound, message)
}

// 在庫不足（商品IDと現在庫を返す）
func InsufficientStockError(productID int64, available int64) error {
	return &HTTPError{
		Status:  http.StatusConflict,
		Code:    CodeInsufficientStock,
		Message: "insufficient stock",
		Details: map[string]any{
			"product_id": productID,
			"available":  available,
		},
	}
}

func ConflictError(code string, message string) error {
	return NewHTTPError(http.StatusConflict, code, message)
}

func ForbiddenError(code string, message string) error {
	return NewHTTPError(http.StatusForbidden, code, message)
}

func InvalidSignatureError() error {
	return NewHTTPError(http.StatusBadRequest, CodeInvalidSignature, "invalid signature")
}

func AmountMismatchError() error {
	return NewHTTPError(http.StatusBadRequest, CodeAmountMismatch, "amount mismatch")
}

// DB/トランザクション失敗（リクエストごとやり直してよい）
func TransientError() error {
	return NewHTTPError(http.StatusServiceUnavailable, CodeTransient, "db error")
}

func UnauthorizedError() error {
	return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
}
