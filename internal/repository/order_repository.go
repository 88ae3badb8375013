package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
)

// ステータス更新と同時に書き換える項目
type OrderStatusFields struct {
	GatewayRef *string
	UpdatedAt  time.Time
}

type OrderRepository interface {
	//transaction_refが衝突したらErrConflict
	Create(ctx context.Context, order model.Order) (model.Order, error)
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByTransactionRef(ctx context.Context, ref string) (model.Order, bool, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)

	// 現在のstatusがfromのときだけtoへ更新する。更新できたらtrue。
	UpdateStatus(ctx context.Context, orderID int64, from, to model.OrderStatus, fields OrderStatusFields) (bool, error)

	// before より前に作られたPENDING注文（古い順）
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
}
