package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// 現在時刻（テストで差し替える）
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// transaction_refの発行
type IDGenerator interface {
	NewTransactionRef() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewTransactionRef() string { return uuid.NewString() }

// 確定メールの元になるデータ
type OrderConfirmation struct {
	OrderID        int64                   `json:"order_id"`
	UserID         int64                   `json:"user_id"`
	TransactionRef string                  `json:"transaction_ref"`
	GatewayRef     string                  `json:"gateway_ref"`
	TotalAmount    int64                   `json:"total_amount"`
	Email          string                  `json:"email"`
	FullName       string                  `json:"full_name"`
	Items          []OrderConfirmationItem `json:"items"`
	CompletedAt    time.Time               `json:"completed_at"`
}

type OrderConfirmationItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

// 確定通知の送信先（失敗してもロールバックしない）
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, c OrderConfirmation) error
}
