package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
)

// 運用者向け：決済の突合に使う監査ログの参照
type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	auditRepo repo.AuditLogRepository
}

func NewAdminOrderUsecase(tx repo.TransactionManager, auditRepo repo.AuditLogRepository) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, auditRepo: auditRepo}
}

// 1つのtransaction_refについての注文と監査ログ
type SettlementTrailOutput struct {
	TransactionRef string           `json:"transaction_ref"`
	Order          *OrderOutput     `json:"order"`
	AuditLogs      []model.AuditLog `json:"audit_logs"`
}

type AuditLogQuery struct {
	Kind       string
	Actor      string
	ResourceID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

var auditKinds = map[model.AuditKind]bool{
	model.AuditKindCheckoutCreated:    true,
	model.AuditKindPaymentSettled:     true,
	model.AuditKindSettlementRejected: true,
	model.AuditKindSettlementReplayed: true,
	model.AuditKindOrderExpired:       true,
}

// ゲートウェイ側で入金があったのにPENDINGのまま、などの調査用。
// ローカルに注文が無くても拒否ログがあれば返す。
func (u *AdminOrderUsecase) Trail(ctx context.Context, transactionRef string) (SettlementTrailOutput, error) {
	ref := strings.TrimSpace(transactionRef)
	if ref == "" || len(ref) > 64 {
		return SettlementTrailOutput{}, ValidationError("invalid transaction_ref")
	}

	out := SettlementTrailOutput{TransactionRef: ref, AuditLogs: []model.AuditLog{}}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, found, err := r.Orders().FindByTransactionRef(ctx, ref)
		if err != nil {
			return TransientError()
		}
		if !found {
			return nil
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return TransientError()
		}
		oo := toOrderOutput(o, items)
		out.Order = &oo
		return nil
	})
	if err != nil {
		return SettlementTrailOutput{}, asUsecaseError(err)
	}

	rt := model.AuditResourceOrder
	logs, err := u.auditRepo.List(ctx, repo.AuditLogFilter{
		ResourceType: &rt,
		ResourceID:   &ref,
		OldestFirst:  true,
		Limit:        200,
	})
	if err != nil {
		return SettlementTrailOutput{}, TransientError()
	}
	out.AuditLogs = append(out.AuditLogs, logs...)

	if out.Order == nil && len(out.AuditLogs) == 0 {
		return SettlementTrailOutput{}, NotFoundError("transaction not found")
	}
	return out, nil
}

// 監査ログ一覧（新しい順）
func (u *AdminOrderUsecase) ListAuditLogs(ctx context.Context, q AuditLogQuery) ([]model.AuditLog, error) {
	// page/limitの最低限チェック
	if q.Page < 1 {
		return []model.AuditLog{}, ValidationError("invalid page")
	}
	if q.Limit < 1 || q.Limit > 200 {
		return []model.AuditLog{}, ValidationError("invalid limit")
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return []model.AuditLog{}, ValidationError("invalid range")
	}

	f := repo.AuditLogFilter{
		CreatedFrom: q.From,
		CreatedTo:   q.To,
		Limit:       q.Limit,
		Offset:      (q.Page - 1) * q.Limit,
	}
	if q.Kind != "" {
		k := model.AuditKind(strings.ToUpper(q.Kind))
		if !auditKinds[k] {
			return []model.AuditLog{}, ValidationError("invalid kind")
		}
		f.Kind = &k
	}
	if q.Actor != "" {
		f.Actor = &q.Actor
	}
	if q.ResourceID != "" {
		f.ResourceID = &q.ResourceID
	}

	logs, err := u.auditRepo.List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, TransientError()
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
