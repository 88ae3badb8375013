package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("producer closed")
	ErrBufferFull     = errors.New("producer buffer full")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// 非同期Producer。Publishはバッファに積むだけで、書き込みは裏のgoroutine。
type Producer struct {
	w            messageWriter
	inbox        chan kafka.Message
	closeCh      chan struct{}
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // 同じtransaction_refは同じパーティション
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:            w,
		inbox:        make(chan kafka.Message, buf),
		closeCh:      make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		for m := range p.inbox {
			wctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			if err := p.w.WriteMessages(wctx, m); err != nil {
				slog.Error("kafka write failed", "topic", m.Topic, "key", string(m.Key), "error", err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			slog.Error("kafka writer close failed", "error", err)
		}
		close(p.closeCh)
	}()

	//ctxが終わったら残りを流してから閉じる
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-p.closeCh:
		}
	}()
}

// バッファが一杯なら待たずにErrBufferFull
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- m:
		return nil
	default:
		return ErrBufferFull
	}
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// 残りの書き込みが終わるまで待つ
func (p *Producer) WaitClosed() { <-p.closeCh }
