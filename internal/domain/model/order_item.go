package model

import "time"

// 注文明細。UnitPriceは注文時点の税込単価。
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPrice           int64     `gorm:"not null;check:unit_price >= 0" json:"unit_price"`
	Quantity            int64     `gorm:"not null;check:quantity BETWEEN 1 AND 100" json:"quantity"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
