package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 決済成功を表すstatus
const StatusComplete = "COMPLETE"

var ErrMalformedCallback = errors.New("malformed callback")

// 検証前のコールバック。金額は受け取った文字列のまま持つ。
type Callback struct {
	TransactionUUID  string
	TransactionCode  string
	Status           string
	TotalAmount      string
	ProductCode      string
	Signature        string
	SignedFieldNames string
	Timestamp        string
}

func (c Callback) IsComplete() bool {
	return c.Status == StatusComplete
}

// 署名対象の3項目
func (c Callback) SignedFields() Fields {
	return Fields{
		TotalAmount:     c.TotalAmount,
		TransactionUUID: c.TransactionUUID,
		ProductCode:     c.ProductCode,
	}
}

// フラットな項目、または data（base64のJSON）から読む。
// 両方ある場合はdataを優先する。
func ParseCallback(fields map[string]string) (Callback, error) {
	if data := strings.TrimSpace(fields["data"]); data != "" {
		decoded, err := DecodeEnvelope(data)
		if err != nil {
			return Callback{}, err
		}
		//ヘッダー由来のtimestampは外側の値を使う
		if decoded["timestamp"] == "" && fields["timestamp"] != "" {
			decoded["timestamp"] = fields["timestamp"]
		}
		fields = decoded
	}

	cb := Callback{
		TransactionUUID:  strings.TrimSpace(fields["transaction_uuid"]),
		TransactionCode:  strings.TrimSpace(fields["transaction_code"]),
		Status:           strings.TrimSpace(fields["status"]),
		TotalAmount:      strings.TrimSpace(fields["total_amount"]),
		ProductCode:      strings.TrimSpace(fields["product_code"]),
		Signature:        strings.TrimSpace(fields["signature"]),
		SignedFieldNames: strings.TrimSpace(fields["signed_field_names"]),
		Timestamp:        strings.TrimSpace(fields["timestamp"]),
	}

	if cb.TransactionUUID == "" {
		return Callback{}, fmt.Errorf("%w: transaction_uuid is required", ErrMalformedCallback)
	}
	if cb.Status == "" {
		return Callback{}, fmt.Errorf("%w: status is required", ErrMalformedCallback)
	}
	if len(cb.TransactionUUID) > 64 {
		return Callback{}, fmt.Errorf("%w: transaction_uuid too long", ErrMalformedCallback)
	}
	return cb, nil
}

// 受け付けるbase64の形式（標準、URLセーフ、それぞれパディングなし）
var envelopeEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// eSewaの成功リダイレクト（?data=...）を読む
func DecodeEnvelope(data string) (map[string]string, error) {
	//クエリ解析で'+'が空白になっている
	data = strings.ReplaceAll(data, " ", "+")

	for _, enc := range envelopeEncodings {
		raw, err := enc.DecodeString(data)
		if err != nil {
			continue
		}
		return FieldsFromJSON(raw)
	}
	return nil, fmt.Errorf("%w: data is not base64", ErrMalformedCallback)
}

// JSONオブジェクトを文字列のmapにする。数値は元の表記のまま残す（1000.0など）。
func FieldsFromJSON(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedCallback)
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = fmt.Sprint(t)
		case nil:
			out[k] = ""
		default:
			return nil, fmt.Errorf("%w: field %s must be scalar", ErrMalformedCallback, k)
		}
	}
	return out, nil
}
