package repository

import (
	"context"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
)

type ShippingZoneRepository interface {
	// 有効なエリアを都市名（完全一致）で探す
	FindActiveByCity(ctx context.Context, city string) (model.ShippingZone, bool, error)
}
