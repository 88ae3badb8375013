package repository

import (
	"context"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"

	"gorm.io/gorm"
)

type ShippingZoneGormRepository struct {
	db *gorm.DB
}

func NewShippingZoneGormRepository(db *gorm.DB) *ShippingZoneGormRepository {
	return &ShippingZoneGormRepository{db: db}
}

// city は完全一致（大文字小文字も区別）
func (r *ShippingZoneGormRepository) FindActiveByCity(ctx context.Context, city string) (model.ShippingZone, bool, error) {
	var z model.ShippingZone
	err := r.db.WithContext(ctx).
		Where("city = ? AND is_active = ?", city, true).
		First(&z).Error
	if isNotFound(err) {
		return model.ShippingZone{}, false, nil
	}
	if err != nil {
		return model.ShippingZone{}, false, err
	}
	return z, true, nil
}
