package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/coffee_saga/internal/events"
	"github.com/fjod/coffee_saga/internal/metrics"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same order id, same partition
		AllowAutoTopicCreation: true,
	}
}

// AsyncPublisher hands OrderCreated events to a background worker through a
// bounded queue. Publish never blocks and never fails the caller: a full queue
// or a broker error is logged and the event is dropped.
type AsyncPublisher struct {
	writer  MessageWriter
	queue   chan events.OrderCreated
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Domain
}

func NewAsyncPublisher(w MessageWriter, queueSize int, log *slog.Logger, m *metrics.Domain) *AsyncPublisher {
	return &AsyncPublisher{
		writer:  w,
		queue:   make(chan events.OrderCreated, queueSize),
		timeout: 5 * time.Second,
		log:     log,
		metrics: m,
	}
}

func (p *AsyncPublisher) Publish(ctx context.Context, ev events.OrderCreated) {
	select {
	case p.queue <- ev:
	default:
		p.metrics.EventPublished("dropped")
		p.log.ErrorContext(ctx, "event queue full, dropping OrderCreated",
			slog.String("order_id", ev.OrderID),
			slog.String("order_number", ev.OrderNumber))
	}
}

// Run sends queued events until ctx is cancelled, then flushes what is left.
func (p *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *AsyncPublisher) Close() error {
	return p.writer.Close()
}

func (p *AsyncPublisher) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) send(ev events.OrderCreated) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.metrics.EventPublished("failed")
		p.log.Error("failed to marshal OrderCreated", slog.String("order_id", ev.OrderID), slog.String("error", err.Error()))
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(events.TypeOrderCreated)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventPublished("failed")
		p.log.Error("failed to publish OrderCreated",
			slog.String("order_id", ev.OrderID),
			slog.String("order_number", ev.OrderNumber),
			slog.String("error", err.Error()))
		return
	}
	p.metrics.EventPublished("published")
	p.log.Info("published OrderCreated", slog.String("order_id", ev.OrderID))
}
