package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
}

type OrderOutput struct {
	ID             int64              `json:"id"`
	UserID         int64              `json:"user_id"`
	TransactionRef string             `json:"transaction_ref"`
	Status         string             `json:"status"`
	Subtotal       int64              `json:"subtotal"`
	ShippingCharge int64              `json:"shipping_charge"`
	TaxAmount      int64              `json:"tax_amount"`
	TotalAmount    int64              `json:"total_amount"`
	GatewayRef     string             `json:"gateway_ref,omitempty"`
	ShippingInfo   model.ShippingInfo `json:"shipping_info"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Items          []OrderItemOutput  `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// GET /orders
func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, UnauthorizedError()
	}
	if page < 1 {
		return OrderListOutput{}, ValidationError("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, ValidationError("invalid limit")
	}

	out := OrderListOutput{Items: []OrderOutput{}, Page: page, Limit: limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return TransientError()
		}
		out.Total = total

		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return TransientError()
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, asUsecaseError(err)
	}
	return out, nil
}

// GET /orders/:id
func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, UnauthorizedError()
	}
	if orderID <= 0 {
		return OrderOutput{}, ValidationError("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NotFoundError("order not found")
		}
		if err != nil {
			return TransientError()
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NotFoundError("order not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return TransientError()
		}

		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, asUsecaseError(err)
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:             o.ID,
		UserID:         o.UserID,
		TransactionRef: o.TransactionRef,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		ShippingCharge: o.ShippingCharge,
		TaxAmount:      o.TaxAmount,
		TotalAmount:    o.TotalAmount,
		GatewayRef:     o.GatewayRef,
		ShippingInfo:   o.ShippingInfo,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Items:          outItems,
	}
}
