package model

import "time"

// 配送エリアごとの送料。Cityは大文字小文字を区別する。
type ShippingZone struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	City      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"city"`
	Charge    int64     `gorm:"not null" json:"charge"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
