package consumer

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/coffee_saga/internal/events"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
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

type fakeHandler struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	stored   []events.OrderCreated
}

func (h *fakeHandler) StoreOrderConfirmation(_ context.Context, e events.OrderCreated) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.failures > 0 {
		h.failures--
		return h.err
	}
	h.stored = append(h.stored, e)
	return nil
}

func (h *fakeHandler) snapshot() (int, []events.OrderCreated) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls, append([]events.OrderCreated(nil), h.stored...)
}
