package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
)

const reconcileBatchSize = 100

// 決済されないまま残ったPENDING注文をFAILEDにする
type ReconcileUsecase struct {
	tx    repo.TransactionManager
	clock Clock
	ttl   time.Duration
}

func NewReconcileUsecase(tx repo.TransactionManager, clock Clock, ttl time.Duration) *ReconcileUsecase {
	return &ReconcileUsecase{tx: tx, clock: clock, ttl: ttl}
}

type ReconcileResult struct {
	Scanned int
	Expired int
}

// ttlより古いPENDINGを1件ずつCASでFAILEDにする。
// 同時にコールバックで確定した注文はCASに負けるのでそのまま。
func (u *ReconcileUsecase) ExpireStalePending(ctx context.Context) (ReconcileResult, error) {
	now := u.clock.Now()
	before := now.Add(-u.ttl)

	var res ReconcileResult
	for {
		var stale []model.Order
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			stale, err = r.Orders().ListStalePending(ctx, before, reconcileBatchSize)
			return err
		})
		if err != nil {
			return res, TransientError()
		}

		expired := 0
		for _, o := range stale {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++

			ok, err := u.expire(ctx, o, now)
			if err != nil {
				return res, err
			}
			if ok {
				expired++
			}
		}
		res.Expired += expired

		//全部CASに負けたら次のページも同じ結果になる
		if len(stale) < reconcileBatchSize || expired == 0 {
			break
		}
	}

	if res.Expired > 0 {
		slog.InfoContext(ctx, "stale orders expired",
			slog.Int("scanned", res.Scanned),
			slog.Int("expired", res.Expired),
		)
	}
	return res, nil
}

func (u *ReconcileUsecase) expire(ctx context.Context, o model.Order, now time.Time) (bool, error) {
	var swapped bool
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		swapped, err = r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusFailed, repo.OrderStatusFields{
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return nil
		}

		details, _ := json.Marshal(map[string]any{
			"order_id":   o.ID,
			"created_at": o.CreatedAt,
			"age":        now.Sub(o.CreatedAt).Round(time.Second).String(),
		})
		return r.AuditLogs().Create(ctx, model.AuditLog{
			Kind:         model.AuditKindOrderExpired,
			Actor:        model.AuditActorReconciler,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.TransactionRef,
			DetailsJSON:  string(details),
			CreatedAt:    now,
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "expire order failed",
			slog.Int64("order_id", o.ID),
			slog.String("error", err.Error()),
		)
		return false, TransientError()
	}
	return swapped, nil
}
