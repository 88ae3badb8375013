// 税込み価格から税額・合計を計算する。
// 金額はすべて整数（通貨単位）。割り算の丸めはdecimal.Round(0)（0から遠い方へ四捨五入）。
package pricing

import (
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// 価格確定済みの1明細
type Line struct {
	ProductID int64
	Quantity  int64
	UnitPrice int64 // 税込み
}

// 注文の金額内訳
type Quote struct {
	Subtotal       int64 // Σ 単価×数量（税込み）
	TaxAmount      int64 // 参考値（Subtotalに含まれる）
	ShippingCharge int64
	TotalAmount    int64 // Subtotal + ShippingCharge
}

// 税率（0.13 = 13%）を持つ
type Calculator struct {
	rate decimal.Decimal
}

func NewCalculator(rate decimal.Decimal) *Calculator {
	return &Calculator{rate: rate}
}

func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// 税抜き価格 = round(price / (1 + rate))
func (c *Calculator) BasePrice(price int64) int64 {
	return decimal.NewFromInt(price).
		Div(one.Add(c.rate)).
		Round(0).
		IntPart()
}

// 税込み価格に含まれる税額
func (c *Calculator) Tax(price int64) int64 {
	return price - c.BasePrice(price)
}

// 明細を合計して送料を足す。送料には税をかけない。
func (c *Calculator) Quote(lines []Line, shippingCharge int64) Quote {
	var q Quote
	for _, l := range lines {
		q.Subtotal += l.UnitPrice * l.Quantity
		q.TaxAmount += c.Tax(l.UnitPrice) * l.Quantity
	}
	q.ShippingCharge = shippingCharge
	q.TotalAmount = q.Subtotal + shippingCharge
	return q
}

// 割引価格があればそちらを使う
func UnitPrice(originalPrice int64, discountPrice *int64) int64 {
	if discountPrice != nil {
		return *discountPrice
	}
	return originalPrice
}

// ゲートウェイの金額（"2100" / "2100.0"）を読む
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// 保存済みの合計と完全一致するか
func AmountEquals(gatewayAmount decimal.Decimal, total int64) bool {
	return gatewayAmount.Equal(decimal.NewFromInt(total))
}
