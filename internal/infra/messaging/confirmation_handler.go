package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/segmentio/kafka-go"
)

// イベントIDの重複排除（Redis）
type Claimer interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// order.completedを受けて確定メールを送る（notifierプロセス側）
type ConfirmationHandler struct {
	dedup Claimer
	sink  usecase.Notifier
}

// dedupはnilでもよい
func NewConfirmationHandler(dedup Claimer, sink usecase.Notifier) *ConfirmationHandler {
	return &ConfirmationHandler{dedup: dedup, sink: sink}
}

func (h *ConfirmationHandler) Handle(ctx context.Context, m kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		//壊れたメッセージはリトライしても直らない
		slog.Error("invalid envelope", "offset", m.Offset, "error", err)
		return nil
	}
	if env.EventType != EventOrderCompleted {
		return nil
	}

	c, err := DecodePayload[usecase.OrderConfirmation](env)
	if err != nil {
		slog.Error("invalid order confirmation", "event_id", env.EventID, "error", err)
		return nil
	}

	if h.dedup != nil {
		first, err := h.dedup.Claim(ctx, env.EventID)
		if err != nil {
			return err
		}
		if !first {
			slog.Info("duplicate event skipped", "event_id", env.EventID, "transaction_ref", c.TransactionRef)
			return nil
		}
	}

	if err := h.sink.SendOrderConfirmation(ctx, c); err != nil {
		if h.dedup != nil {
			if rerr := h.dedup.Release(ctx, env.EventID); rerr != nil {
				slog.Error("dedup release failed", "event_id", env.EventID, "error", rerr)
			}
		}
		return err
	}
	return nil
}
