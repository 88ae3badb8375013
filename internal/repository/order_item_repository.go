package repository

import (
	"context"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
)

// 注文明細。作成はチェックアウト時の1回だけで、以後は読み取りのみ。
type OrderItemRepository interface {
	// orderIDを各行に入れて一括保存
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error

	// 作成順。決済確定時の在庫減算に使う
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}
