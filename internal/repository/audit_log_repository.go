package repository

import (
	"context"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
)

// 監査ログの絞り込み条件。nilの項目は条件にしない。
type AuditLogFilter struct {
	Kind         *model.AuditKind
	Actor        *string
	ResourceType *model.AuditResourceType
	ResourceID   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time

	// trueなら古い順（取引の経緯を追うとき）。既定は新しい順。
	OldestFirst bool

	Limit  int
	Offset int
}

type AuditLogRepository interface {
	// 追記のみ（更新・削除はしない）
	Create(ctx context.Context, log model.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
