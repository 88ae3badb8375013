// Package mail は注文確定メールの送信。本文の装飾はしない。
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs-labo46/ec-settlement/internal/usecase"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// 確定内容をプレーンテキストにする
func ConfirmationMessage(c usecase.OrderConfirmation) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 様\n\n", c.FullName)
	fmt.Fprintf(&b, "ご注文 #%d の決済が完了しました。\n", c.OrderID)
	fmt.Fprintf(&b, "取引番号: %s\n", c.TransactionRef)
	if c.GatewayRef != "" {
		fmt.Fprintf(&b, "決済番号: %s\n", c.GatewayRef)
	}
	b.WriteString("\n")
	for _, it := range c.Items {
		fmt.Fprintf(&b, "- %s x%d @ %d\n", it.Name, it.Quantity, it.UnitPrice)
	}
	fmt.Fprintf(&b, "\n合計: %d\n", c.TotalAmount)

	return Message{
		To:      c.Email,
		Subject: fmt.Sprintf("ご注文 #%d の確定", c.OrderID),
		Body:    b.String(),
	}
}

// ログに書くだけの送信者（SMTPの代わり）
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendOrderConfirmation(ctx context.Context, c usecase.OrderConfirmation) error {
	if c.Email == "" {
		m.logger.InfoContext(ctx, "order confirmation skipped: no email",
			"order_id", c.OrderID, "transaction_ref", c.TransactionRef)
		return nil
	}

	msg := ConfirmationMessage(c)
	m.logger.InfoContext(ctx, "order confirmation sent",
		"to", msg.To,
		"subject", msg.Subject,
		"order_id", c.OrderID,
		"transaction_ref", c.TransactionRef,
		"total_amount", c.TotalAmount,
		"body", msg.Body,
	)
	return nil
}
