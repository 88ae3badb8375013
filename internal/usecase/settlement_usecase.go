package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"strconv"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	"github.com/rs-labo46/ec-settlement/internal/gateway"
	"github.com/rs-labo46/ec-settlement/internal/pricing"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
)

const (
	MessageSettled      = "payment settled"
	MessageAlreadyDone  = "already processed"
	MessageNotCompleted = "payment not completed"
)

// コールバック検証の設定
type SettlementPolicy struct {
	// 本番は送信元制限と署名が必須
	Production bool
	AllowedIPs []netip.Prefix
	MaxSkew    time.Duration
	// 本番でタイムスタンプ無しを拒否するか
	RequireTimestamp bool
	SecretKey        string
}

// コールバックの生データ
type SettlementInput struct {
	RemoteIP        string
	TimestampHeader string
	Fields          map[string]string
}

type SettlementOutput struct {
	Message string `json:"message"`
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

type SettlementUsecase struct {
	tx       repo.TransactionManager
	notifier Notifier
	clock    Clock
	policy   SettlementPolicy
}

// DI
func NewSettlementUsecase(tx repo.TransactionManager, notifier Notifier, clock Clock, policy SettlementPolicy) *SettlementUsecase {
	return &SettlementUsecase{
		tx:       tx,
		notifier: notifier,
		clock:    clock,
		policy:   policy,
	}
}

// ゲートウェイからのコールバックを処理する。
// 何度呼ばれても在庫は1回だけ減る（transaction_refがべき等キー）。
func (u *SettlementUsecase) Settle(ctx context.Context, in SettlementInput) (SettlementOutput, error) {
	now := u.clock.Now()

	cb, parseErr := gateway.ParseCallback(in.Fields)
	ref := cb.TransactionUUID
	if ref == "" {
		ref = in.Fields["transaction_uuid"]
	}

	//1.送信元
	if err := u.checkOrigin(in.RemoteIP); err != nil {
		return SettlementOutput{}, u.reject(ctx, ref, "origin_not_allowed", map[string]any{"remote_ip": in.RemoteIP}, err)
	}
	if parseErr != nil {
		return SettlementOutput{}, u.reject(ctx, ref, "malformed_callback", nil, ValidationError(parseErr.Error()))
	}

	//2.鮮度
	if err := u.checkFreshness(in.TimestampHeader, cb.Timestamp, now); err != nil {
		return SettlementOutput{}, u.reject(ctx, ref, "stale_callback", nil, err)
	}

	//3.注文の取得
	var order model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, found, err := r.Orders().FindByTransactionRef(ctx, ref)
		if err != nil {
			return TransientError()
		}
		if !found {
			return NotFoundError("order not found")
		}
		order = o
		return nil
	})
	if err != nil {
		return SettlementOutput{}, u.reject(ctx, ref, "order_lookup", nil, asUsecaseError(err))
	}

	//4.ゲートウェイ側で未完了なら何もしない（再送を止めるため200）
	if !cb.IsComplete() {
		slog.InfoContext(ctx, "callback without completion",
			slog.String("transaction_ref", ref),
			slog.String("gateway_status", cb.Status),
		)
		return SettlementOutput{Message: MessageNotCompleted, OrderID: order.ID, Status: string(order.Status)}, nil
	}

	//5.確定済みなら副作用なしで成功
	if order.Status == model.OrderStatusCompleted {
		u.replayed(ctx, order, cb)
		return SettlementOutput{Message: MessageAlreadyDone, OrderID: order.ID, Status: string(order.Status)}, nil
	}

	//6.署名
	if !gateway.Verify(cb.SignedFields(), cb.Signature, u.policy.SecretKey) {
		if u.policy.Production {
			return SettlementOutput{}, u.reject(ctx, ref, "invalid_signature", nil, InvalidSignatureError())
		}
		slog.WarnContext(ctx, "signature check failed, continuing outside production",
			slog.String("transaction_ref", ref),
		)
	}

	//7.金額（完全一致）
	amount, err := pricing.ParseAmount(cb.TotalAmount)
	if err != nil || !pricing.AmountEquals(amount, order.TotalAmount) {
		return SettlementOutput{}, u.reject(ctx, ref, "amount_mismatch", map[string]any{
			"expected": order.TotalAmount,
			"received": cb.TotalAmount,
		}, AmountMismatchError())
	}

	//8-9.状態遷移と在庫減算は1トランザクション
	var (
		items    []model.OrderItem
		replayed bool
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		gatewayRef := cb.TransactionCode
		swapped, err := r.Orders().UpdateStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusCompleted, repo.OrderStatusFields{
			GatewayRef: &gatewayRef,
			UpdatedAt:  now,
		})
		if err != nil {
			return TransientError()
		}
		if !swapped {
			//同時に来た別のコールバックが先に確定させた
			cur, err := r.Orders().FindByID(ctx, order.ID)
			if err != nil {
				return TransientError()
			}
			if cur.Status == model.OrderStatusCompleted {
				replayed = true
				return nil
			}
			return ConflictError(CodeOrderNotPending, fmt.Sprintf("order is %s", cur.Status))
		}

		items, err = r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return TransientError()
		}

		if err := decreaseStock(ctx, r, order, items); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]any{
			"order_id":     order.ID,
			"gateway_ref":  gatewayRef,
			"total_amount": order.TotalAmount,
		})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			Kind:         model.AuditKindPaymentSettled,
			Actor:        model.AuditActorGateway,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   order.TransactionRef,
			DetailsJSON:  string(details),
			CreatedAt:    now,
		}); err != nil {
			return TransientError()
		}

		order.Status = model.OrderStatusCompleted
		order.GatewayRef = gatewayRef
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return SettlementOutput{}, u.reject(ctx, ref, rejectReason(err), nil, asUsecaseError(err))
	}

	if replayed {
		u.replayed(ctx, order, cb)
		return SettlementOutput{Message: MessageAlreadyDone, OrderID: order.ID, Status: string(model.OrderStatusCompleted)}, nil
	}

	slog.InfoContext(ctx, "payment settled",
		slog.Int64("order_id", order.ID),
		slog.String("transaction_ref", order.TransactionRef),
		slog.String("gateway_ref", order.GatewayRef),
	)

	//10.通知の失敗は確定をロールバックしない
	if err := u.notifier.SendOrderConfirmation(ctx, toConfirmation(order, items)); err != nil {
		slog.WarnContext(ctx, "order confirmation failed",
			slog.String("transaction_ref", order.TransactionRef),
			slog.String("error", err.Error()),
		)
	}

	return SettlementOutput{Message: MessageSettled, OrderID: order.ID, Status: string(order.Status)}, nil
}

// 商品IDの昇順でロックして減らす（デッドロック回避）
func decreaseStock(ctx context.Context, r repo.TxRepos, order model.Order, items []model.OrderItem) error {
	qty := map[int64]int64{}
	for _, it := range items {
		qty[it.ProductID] += it.Quantity
	}
	ids := make([]int64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p, err := r.Products().FindByIDForUpdate(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return InsufficientStockError(id, 0)
		}
		if err != nil {
			return TransientError()
		}
		//チェックアウト後に在庫が減っていたら全体を中止
		if p.StockQuantity < qty[id] {
			return InsufficientStockError(id, p.StockQuantity)
		}
		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, id, qty[id])
		if err != nil {
			return TransientError()
		}
		if !ok {
			return InsufficientStockError(id, p.StockQuantity)
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: id,
			OrderID:   order.ID,
			Delta:     -qty[id],
			Reason:    "settlement " + order.TransactionRef,
		}); err != nil {
			return TransientError()
		}
	}
	return nil
}

func (u *SettlementUsecase) checkOrigin(remoteIP string) error {
	if !u.policy.Production {
		return nil
	}
	addr, err := netip.ParseAddr(remoteIP)
	if err != nil {
		return ForbiddenError(CodeForbidden, "origin not allowed")
	}
	addr = addr.Unmap()
	for _, p := range u.policy.AllowedIPs {
		if p.Contains(addr) {
			return nil
		}
	}
	return ForbiddenError(CodeForbidden, "origin not allowed")
}

// ヘッダー優先。unix秒かRFC3339。
func (u *SettlementUsecase) checkFreshness(header string, field string, now time.Time) error {
	raw := header
	if raw == "" {
		raw = field
	}
	if raw == "" {
		if u.policy.Production && u.policy.RequireTimestamp {
			return ForbiddenError(CodeStaleCallback, "timestamp required")
		}
		return nil
	}

	ts, err := parseTimestamp(raw)
	if err != nil {
		return ValidationError("invalid timestamp")
	}
	//窓の両端と直接比べる（差分はDurationで飽和する）
	if ts.Before(now.Add(-u.policy.MaxSkew)) || ts.After(now.Add(u.policy.MaxSkew)) {
		return ForbiddenError(CodeStaleCallback, "stale callback")
	}
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}

// 拒否は必ず監査ログに残す（トランザクションの外で）
func (u *SettlementUsecase) reject(ctx context.Context, ref string, reason string, extra map[string]any, cause error) error {
	he, _ := AsHTTPError(cause)
	code := ""
	status := 0
	if he != nil {
		code = he.Code
		status = he.Status
	}

	slog.WarnContext(ctx, "settlement rejected",
		slog.String("transaction_ref", ref),
		slog.String("reason", reason),
		slog.String("code", code),
		slog.Int("status", status),
	)

	details := map[string]any{"reason": reason, "code": code}
	for k, v := range extra {
		details[k] = v
	}
	u.audit(ctx, model.AuditKindSettlementRejected, ref, details)
	return cause
}

func (u *SettlementUsecase) replayed(ctx context.Context, order model.Order, cb gateway.Callback) {
	slog.InfoContext(ctx, "callback for completed order",
		slog.String("transaction_ref", order.TransactionRef),
	)
	u.audit(ctx, model.AuditKindSettlementReplayed, order.TransactionRef, map[string]any{
		"order_id":         order.ID,
		"transaction_code": cb.TransactionCode,
	})
}

func (u *SettlementUsecase) audit(ctx context.Context, kind model.AuditKind, ref string, details map[string]any) {
	if ref == "" {
		ref = "unknown"
	}
	b, _ := json.Marshal(details)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return r.AuditLogs().Create(ctx, model.AuditLog{
			Kind:         kind,
			Actor:        model.AuditActorGateway,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   ref,
			DetailsJSON:  string(b),
			CreatedAt:    u.clock.Now(),
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "audit log write failed",
			slog.String("kind", string(kind)),
			slog.String("transaction_ref", ref),
			slog.String("error", err.Error()),
		)
	}
}

func rejectReason(err error) string {
	if he, ok := AsHTTPError(err); ok {
		return he.Code
	}
	return CodeTransient
}

func toConfirmation(o model.Order, items []model.OrderItem) OrderConfirmation {
	out := OrderConfirmation{
		OrderID:        o.ID,
		UserID:         o.UserID,
		TransactionRef: o.TransactionRef,
		GatewayRef:     o.GatewayRef,
		TotalAmount:    o.TotalAmount,
		Email:          o.ShippingInfo.Email,
		FullName:       o.ShippingInfo.FullName,
		Items:          make([]OrderConfirmationItem, 0, len(items)),
		CompletedAt:    o.UpdatedAt,
	}
	for _, it := range items {
		out.Items = append(out.Items, OrderConfirmationItem{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return out
}
