package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// PENDINGからだけ遷移できる。COMPLETED/FAILEDは終端。
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusCompleted: true, OrderStatusFailed: true},
	OrderStatusCompleted: {},
	OrderStatusFailed:    {},
}

func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// 注文（集約ルート）
// TransactionRefは決済ゲートウェイとの突合キー兼べき等キー。
type Order struct {
	ID             int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64        `gorm:"not null;index" json:"user_id"`
	TransactionRef string       `gorm:"type:varchar(64);not null;uniqueIndex:uniq_orders_transaction_ref" json:"transaction_ref"`
	Status         OrderStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	Subtotal       int64        `gorm:"not null" json:"subtotal"`
	ShippingCharge int64        `gorm:"not null" json:"shipping_charge"`
	TaxAmount      int64        `gorm:"not null" json:"tax_amount"`
	TotalAmount    int64        `gorm:"not null" json:"total_amount"`
	GatewayRef     string       `gorm:"type:varchar(255);not null;default:''" json:"gateway_ref"`
	ShippingInfo   ShippingInfo `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_info"`
	Items          []OrderItem  `gorm:"-" json:"items"`
	CreatedAt      time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}
