package repository

import (
	"context"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
)

// 商品の取得だけを約束。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)

	// 行ロック付きで取得（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, id int64) (model.Product, error)
}
