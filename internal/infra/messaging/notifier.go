package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/segmentio/kafka-go"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// 決済確定をorder.completedに流す（APIプロセス側）
type KafkaNotifier struct {
	p      publisher
	source string
	now    func() time.Time
}

func NewKafkaNotifier(p *Producer, source string) *KafkaNotifier {
	return &KafkaNotifier{p: p, source: source, now: time.Now}
}

func (n *KafkaNotifier) SendOrderConfirmation(ctx context.Context, c usecase.OrderConfirmation) error {
	env, err := NewEnvelope(EventOrderCompleted, n.source, c.TransactionRef, c, n.now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.p.Publish(
		[]byte(c.TransactionRef),
		b,
		kafka.Header{Key: HeaderEventType, Value: []byte(EventOrderCompleted)},
	)
}
