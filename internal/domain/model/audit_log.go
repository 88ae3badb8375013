package model

import "time"

// 決済まわりの監査イベント種別
type AuditKind string

const (
	//チェックアウトで注文を作成した
	AuditKindCheckoutCreated AuditKind = "CHECKOUT_CREATED"
	//決済を確定し在庫を減らした
	AuditKindPaymentSettled AuditKind = "PAYMENT_SETTLED"
	//コールバックを拒否した（署名・金額・送信元など）
	AuditKindSettlementRejected AuditKind = "SETTLEMENT_REJECTED"
	//確定済みの注文へのコールバック再送
	AuditKindSettlementReplayed AuditKind = "SETTLEMENT_REPLAYED"
	//期限切れのPENDING注文をFAILEDにした
	AuditKindOrderExpired AuditKind = "ORDER_EXPIRED"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceOrder AuditResourceType = "order"
)

const (
	AuditActorGateway    = "gateway"
	AuditActorReconciler = "reconciler"
)

// 監査ログ。
// 「誰が」「何を」「どの対象に」「どうしたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	Kind AuditKind `gorm:"type:varchar(50);not null;index" json:"kind"`

	//user:<id> / gateway / reconciler
	Actor string `gorm:"type:varchar(100);not null;index" json:"actor"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//注文はtransaction_refで残す（ローカル注文が無い場合もあるため）
	ResourceID string `gorm:"type:varchar(100);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	DetailsJSON string `gorm:"type:text" json:"details_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
