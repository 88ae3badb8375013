package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	"github.com/rs-labo46/ec-settlement/internal/gateway"
	"github.com/rs-labo46/ec-settlement/internal/pricing"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
)

// 入力チェックはvalidatorに任せる
type CheckoutValidator interface {
	ValidateCheckout(ctx context.Context, in CheckoutInput) error
}

type CheckoutItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type ShippingInput struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	City       string `json:"city"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
}

// POST /checkoutの入力DTO
type CheckoutInput struct {
	Items        []CheckoutItemInput `json:"items"`
	ShippingInfo ShippingInput       `json:"shipping_info"`
}

type CheckoutOutput struct {
	OrderID        int64              `json:"order_id"`
	TransactionRef string             `json:"transaction_ref"`
	FormAction     string             `json:"form_action"`
	Fields         gateway.FormFields `json:"fields"`
	Subtotal       int64              `json:"subtotal"`
	ShippingCharge int64              `json:"shipping_charge"`
	TaxAmount      int64              `json:"tax_amount"`
	TotalAmount    int64              `json:"total_amount"`
}

type CheckoutUsecase struct {
	tx        repo.TransactionManager
	calc      *pricing.Calculator
	merchant  gateway.Merchant
	validator CheckoutValidator
	ids       IDGenerator
	clock     Clock
}

// DI
func NewCheckoutUsecase(
	tx repo.TransactionManager,
	calc *pricing.Calculator,
	merchant gateway.Merchant,
	validator CheckoutValidator,
	ids IDGenerator,
	clock Clock,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:        tx,
		calc:      calc,
		merchant:  merchant,
		validator: validator,
		ids:       ids,
		clock:     clock,
	}
}

// カートから注文(PENDING)を作り、ゲートウェイへ送るフォームを返す。
// 在庫はここでは減らさない（決済確定時に減らす）。
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, UnauthorizedError()
	}

	in.ShippingInfo = normalizeShipping(in.ShippingInfo)
	if err := u.validator.ValidateCheckout(ctx, in); err != nil {
		return CheckoutOutput{}, ValidationError(err.Error())
	}

	//同じ商品が複数行あれば数量を合算して在庫チェックする
	wanted := map[int64]int64{}
	productIDs := []int64{}
	for _, it := range in.Items {
		if _, ok := wanted[it.ProductID]; !ok {
			productIDs = append(productIDs, it.ProductID)
		}
		wanted[it.ProductID] += it.Quantity
	}

	var out CheckoutOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		products := make(map[int64]model.Product, len(productIDs))
		for _, id := range productIDs {
			p, err := r.Products().FindByID(ctx, id)
			if errors.Is(err, repo.ErrNotFound) {
				return NotFoundError(fmt.Sprintf("product %d not found", id))
			}
			if err != nil {
				return TransientError()
			}
			//非公開の商品は存在しない扱い
			if !p.IsPurchasable() {
				return NotFoundError(fmt.Sprintf("product %d not found", id))
			}
			if p.StockQuantity < wanted[id] {
				return InsufficientStockError(p.ID, p.StockQuantity)
			}
			products[id] = p
		}

		//明細は入力順のまま、単価は今の価格で固定する
		lines := make([]pricing.Line, 0, len(in.Items))
		items := make([]model.OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			p := products[it.ProductID]
			unit := pricing.UnitPrice(p.OriginalPrice, p.DiscountPrice)
			lines = append(lines, pricing.Line{ProductID: p.ID, Quantity: it.Quantity, UnitPrice: unit})
			items = append(items, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPrice:           unit,
				Quantity:            it.Quantity,
			})
		}

		//送料（見つからなければ0）
		shipping := int64(0)
		zone, found, err := r.ShippingZones().FindActiveByCity(ctx, in.ShippingInfo.City)
		if err != nil {
			return TransientError()
		}
		if found {
			shipping = zone.Charge
		} else {
			slog.WarnContext(ctx, "shipping zone not found, charging 0",
				slog.String("city", in.ShippingInfo.City),
				slog.Int64("user_id", userID),
			)
		}

		quote := u.calc.Quote(lines, shipping)

		now := u.clock.Now()
		order, err := r.Orders().Create(ctx, model.Order{
			UserID:         userID,
			TransactionRef: u.ids.NewTransactionRef(),
			Status:         model.OrderStatusPending,
			Subtotal:       quote.Subtotal,
			ShippingCharge: quote.ShippingCharge,
			TaxAmount:      quote.TaxAmount,
			TotalAmount:    quote.TotalAmount,
			ShippingInfo:   toShippingInfo(in.ShippingInfo),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if errors.Is(err, repo.ErrConflict) {
			return ConflictError(CodeConflict, "transaction_ref conflict")
		}
		if err != nil {
			return TransientError()
		}

		for i := range items {
			items[i].OrderID = order.ID
			items[i].CreatedAt = now
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, items); err != nil {
			return TransientError()
		}

		details, _ := json.Marshal(map[string]any{
			"order_id":        order.ID,
			"subtotal":        quote.Subtotal,
			"shipping_charge": quote.ShippingCharge,
			"total_amount":    quote.TotalAmount,
			"lines":           len(items),
		})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			Kind:         model.AuditKindCheckoutCreated,
			Actor:        userActor(userID),
			ResourceType: model.AuditResourceOrder,
			ResourceID:   order.TransactionRef,
			DetailsJSON:  string(details),
			CreatedAt:    now,
		}); err != nil {
			return TransientError()
		}

		form := u.merchant.BuildForm(gateway.FormInput{
			TransactionUUID: order.TransactionRef,
			Subtotal:        quote.Subtotal,
			TaxAmount:       quote.TaxAmount,
			ShippingCharge:  quote.ShippingCharge,
			TotalAmount:     quote.TotalAmount,
		})

		out = CheckoutOutput{
			OrderID:        order.ID,
			TransactionRef: order.TransactionRef,
			FormAction:     form.Action,
			Fields:         form.Fields,
			Subtotal:       quote.Subtotal,
			ShippingCharge: quote.ShippingCharge,
			TaxAmount:      quote.TaxAmount,
			TotalAmount:    quote.TotalAmount,
		}
		return nil
	})
	if err != nil {
		return CheckoutOutput{}, asUsecaseError(err)
	}

	slog.InfoContext(ctx, "checkout created",
		slog.Int64("order_id", out.OrderID),
		slog.String("transaction_ref", out.TransactionRef),
		slog.Int64("total_amount", out.TotalAmount),
	)
	return out, nil
}

func normalizeShipping(s ShippingInput) ShippingInput {
	return ShippingInput{
		FullName:   strings.TrimSpace(s.FullName),
		Phone:      strings.TrimSpace(s.Phone),
		Email:      strings.TrimSpace(s.Email),
		City:       strings.TrimSpace(s.City),
		Address:    strings.TrimSpace(s.Address),
		PostalCode: strings.TrimSpace(s.PostalCode),
	}
}

func toShippingInfo(s ShippingInput) model.ShippingInfo {
	return model.ShippingInfo{
		FullName:   s.FullName,
		Phone:      s.Phone,
		Email:      s.Email,
		City:       s.City,
		Address:    s.Address,
		PostalCode: s.PostalCode,
	}
}

func userActor(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// HTTPError以外（commit失敗など）は一時エラーにする
func asUsecaseError(err error) error {
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return TransientError()
}
