// eSewa（v2）形式の署名・フォーム・コールバック。
// 署名対象の項目名と順番はゲートウェイ側と共有する契約なので変えない。
package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const SignedFieldNames = "total_amount,transaction_uuid,product_code"

// 署名対象の3項目（文字列のまま扱う）
type Fields struct {
	TotalAmount     string
	TransactionUUID string
	ProductCode     string
}

// "total_amount=..,transaction_uuid=..,product_code=.."
func (f Fields) Message() string {
	return fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		f.TotalAmount, f.TransactionUUID, f.ProductCode)
}

// base64(HMAC-SHA256(secret, message))
func Sign(f Fields, secret string) string {
	return base64.StdEncoding.EncodeToString(mac(f, secret))
}

// 定数時間で比較する
func Verify(f Fields, signature string, secret string) bool {
	if signature == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(got, mac(f, secret))
}

func mac(f Fields, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(f.Message()))
	return h.Sum(nil)
}
