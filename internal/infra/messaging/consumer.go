package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// nilを返したときだけoffsetをcommitする
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r           messageReader
	workers     int
	maxAttempts int
	backoff     time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // 手動commit
	})
	return newConsumer(r, workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, maxAttempts: 3, backoff: 200 * time.Millisecond}
}

// ctxが終わるまでブロックする
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.process(ctx, h, m)
			}
		}()
	}
	stop := func() {
		close(jobs)
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		slog.Warn("message handler failed",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset,
			"attempt", attempt, "error", err)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			//commitせずに終わる（再起動後にもう一度届く）
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		//パーティションを止めないために諦めてcommitする
		slog.Error("message dropped",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
	}

	if err := c.r.CommitMessages(ctx, m); err != nil {
		slog.Error("kafka commit failed", "offset", m.Offset, "error", err)
	}
}
