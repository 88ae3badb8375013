package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"

	"gorm.io/gorm"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) (model.Order, error) {
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		if isUniqueViolation(err) {
			return model.Order{}, repo.ErrConflict
		}
		return model.Order{}, err
	}
	return order, nil
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if isNotFound(err) {
		return model.Order{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (r *OrderGormRepository) FindByTransactionRef(ctx context.Context, ref string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Where("transaction_ref = ?", ref).
		First(&o).Error

	if isNotFound(err) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}

// compare-and-swap。WHERE status = from が外れたら0件更新でfalse。
func (r *OrderGormRepository) UpdateStatus(ctx context.Context, orderID int64, from, to model.OrderStatus, fields repo.OrderStatusFields) (bool, error) {
	if !model.CanTransition(from, to) {
		return false, fmt.Errorf("invalid order transition %s -> %s", from, to)
	}
	updatedAt := fields.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	values := map[string]interface{}{
		"status":     to,
		"updated_at": updatedAt,
	}
	if fields.GatewayRef != nil {
		values["gateway_ref"] = *fields.GatewayRef
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OrderGormRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []model.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.OrderStatusPending, before).
		Order("created_at asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, err
	}
	return items, nil
}
