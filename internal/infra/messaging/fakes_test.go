package messaging

import (
	"context"
	"errors"
	"sync"

	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
)

// =====================
// Kafka fakes
// =====================

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	ch chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
	fetchErr  error
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{ch: make(chan kafka.Message, len(msgs)+1)}
	for _, m := range msgs {
		r.ch <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		return kafka.Message{}, r.fetchErr
	}
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakePublisher struct {
	key     []byte
	value   []byte
	headers []kafka.Header
	err     error
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	p.key, p.value, p.headers = key, value, headers
	return p.err
}

// =====================
// mocks
// =====================

type ClaimerMock struct {
	mock.Mock
}

func (m *ClaimerMock) Claim(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *ClaimerMock) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type SinkMock struct {
	mock.Mock
}

func (m *SinkMock) SendOrderConfirmation(ctx context.Context, c usecase.OrderConfirmation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

var errBroker = errors.New("broker unavailable")
