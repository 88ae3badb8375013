package gateway

import (
	"strconv"
)

// フォーム作成に必要な値
type FormInput struct {
	TransactionUUID string
	Subtotal        int64 // 税込み
	TaxAmount       int64
	ShippingCharge  int64
	TotalAmount     int64
}

// クライアントがゲートウェイへPOSTする項目
type FormFields struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	SignedFieldNames      string `json:"signed_field_names"`
	Signature             string `json:"signature"`
}

type Form struct {
	Action string     `json:"form_action"`
	Fields FormFields `json:"fields"`
}

// 加盟店ごとの設定
type Merchant struct {
	FormURL     string
	ProductCode string
	SecretKey   string
	SuccessURL  string
	FailureURL  string
}

// 署名済みのリダイレクト用フォームを作る。
// amount + tax_amount + service + delivery = total_amount になるように分ける。
func (m Merchant) BuildForm(in FormInput) Form {
	total := strconv.FormatInt(in.TotalAmount, 10)

	sig := Sign(Fields{
		TotalAmount:     total,
		TransactionUUID: in.TransactionUUID,
		ProductCode:     m.ProductCode,
	}, m.SecretKey)

	return Form{
		Action: m.FormURL,
		Fields: FormFields{
			Amount:                strconv.FormatInt(in.Subtotal-in.TaxAmount, 10),
			TaxAmount:             strconv.FormatInt(in.TaxAmount, 10),
			TotalAmount:           total,
			TransactionUUID:       in.TransactionUUID,
			ProductCode:           m.ProductCode,
			ProductServiceCharge:  "0",
			ProductDeliveryCharge: strconv.FormatInt(in.ShippingCharge, 10),
			SuccessURL:            m.SuccessURL,
			FailureURL:            m.FailureURL,
			SignedFieldNames:      SignedFieldNames,
			Signature:             sig,
		},
	}
}
