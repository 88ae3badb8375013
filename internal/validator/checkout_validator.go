package validator

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/rs-labo46/ec-settlement/internal/usecase"
)

const (
	maxCheckoutLines = 50
	minLineQuantity  = 1
	maxLineQuantity  = 100
)

// 入力が不正
var ErrInvalidInput = errors.New("invalid input")

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type checkoutValidator struct{}

// Usecaseは interface を依存注入
func NewCheckoutValidator() usecase.CheckoutValidator {
	return &checkoutValidator{}
}

// チェックアウトの入力を検証（配送先はtrim済みで来る）
func (v *checkoutValidator) ValidateCheckout(ctx context.Context, in usecase.CheckoutInput) error {
	if len(in.Items) == 0 {
		return invalid("items must not be empty")
	}
	if len(in.Items) > maxCheckoutLines {
		return invalid(fmt.Sprintf("items must be at most %d", maxCheckoutLines))
	}
	for i, it := range in.Items {
		if it.ProductID <= 0 {
			return invalid(fmt.Sprintf("items[%d].product_id is invalid", i))
		}
		if it.Quantity < minLineQuantity || it.Quantity > maxLineQuantity {
			return invalid(fmt.Sprintf("items[%d].quantity must be between %d and %d", i, minLineQuantity, maxLineQuantity))
		}
	}

	s := in.ShippingInfo
	// 必須チェック
	required := []struct {
		name  string
		value string
		max   int
	}{
		{"full_name", s.FullName, 255},
		{"phone", s.Phone, 30},
		{"city", s.City, 255},
		{"address", s.Address, 255},
	}
	for _, f := range required {
		if f.value == "" {
			return invalid(fmt.Sprintf("shipping_info.%s is required", f.name))
		}
		if len(f.value) > f.max {
			return invalid(fmt.Sprintf("shipping_info.%s is too long", f.name))
		}
	}
	if len(s.PostalCode) > 20 {
		return invalid("shipping_info.postal_code is too long")
	}
	// emailは任意。あれば形式だけ見る
	if s.Email != "" && (len(s.Email) > 255 || !emailRe.MatchString(s.Email)) {
		return invalid("shipping_info.email is invalid")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
