package repository

import (
	"context"
	"fmt"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"

	"gorm.io/gorm"
)

// 明細は最大50行なので1回のINSERTで入る
const orderItemBatchSize = 100

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

// 価格・商品名は注文時点のスナップショットとして保存する
func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]model.OrderItem, len(items))
	for i, it := range items {
		it.OrderID = orderID
		rows[i] = it
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, orderItemBatchSize).Error; err != nil {
		return fmt.Errorf("create order items (order %d): %w", orderID, err)
	}
	return nil
}

// 入力順（id昇順）で返す
func (r *OrderItemGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	items := []model.OrderItem{}
	err := r.db.WithContext(ctx).
		Where(&model.OrderItem{OrderID: orderID}).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list order items (order %d): %w", orderID, err)
	}
	return items, nil
}
