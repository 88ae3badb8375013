package model

// 配送先（注文に埋め込む値オブジェクト）
type ShippingInfo struct {
	//宛名
	FullName string `gorm:"type:varchar(255);not null" json:"full_name"`

	//電話番号
	Phone string `gorm:"type:varchar(30);not null" json:"phone"`

	Email string `gorm:"type:varchar(255)" json:"email"`

	//市区町村（配送料の検索キー）
	City string `gorm:"type:varchar(255);not null" json:"city"`

	//番地など
	Address string `gorm:"type:varchar(255);not null" json:"address"`

	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`
}
