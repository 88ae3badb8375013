package model

import (
	"time"

	"gorm.io/gorm"
)

type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "active"
	ProductStatusInactive   ProductStatus = "inactive"
	ProductStatusOutOfStock ProductStatus = "out-of-stock"
)

// 商品。価格は税込み。
type Product struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	OriginalPrice int64          `gorm:"not null" json:"original_price"`
	DiscountPrice *int64         `json:"discount_price"`
	StockQuantity int64          `gorm:"not null;check:stock_quantity >= 0" json:"stock_quantity"`
	Status        ProductStatus  `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// 購入できるか（在庫切れは在庫チェックで弾く）
func (p Product) IsPurchasable() bool {
	return p.Status != ProductStatusInactive
}
