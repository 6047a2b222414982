package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/fjod/coffee_saga/internal/events"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler interface {
	StoreOrderConfirmation(ctx context.Context, e events.OrderCreated) error
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// Consumer turns OrderCreated messages into notifications. Offsets are
// committed after the handler ran, so a crash redelivers the message and the
// handler's deduplication absorbs it.
type Consumer struct {
	reader        MessageReader
	handler       Handler
	log           *slog.Logger
	retryInterval time.Duration
	maxTries      uint
}

func NewConsumer(reader MessageReader, handler Handler, log *slog.Logger) *Consumer {
	return &Consumer{
		reader:        reader,
		handler:       handler,
		log:           log,
		retryInterval: 200 * time.Millisecond,
		maxTries:      5,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing kafka reader", slog.String("error", err.Error()))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		c.log.ErrorContext(ctx, "error reading message", slog.String("error", err.Error()))
		return
	}

	c.handle(ctx, m)

	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.ErrorContext(ctx, "error committing message",
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()))
	}
}

// handle never fails: malformed or foreign messages are skipped and a handler
// that keeps failing after retries is logged so the partition keeps moving.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	if t := eventType(m); t != "" && t != events.TypeOrderCreated {
		c.log.DebugContext(ctx, "skipping message", slog.String("event_type", t))
		return
	}

	var event events.OrderCreated
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.ErrorContext(ctx, "error parsing message",
			slog.Int64("offset", m.Offset),
			slog.String("error", err.Error()))
		return
	}
	if event.OrderID == "" || event.OrderNumber == "" {
		c.log.ErrorContext(ctx, "order event without order id", slog.Int64("offset", m.Offset))
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 10 * c.retryInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.handler.StoreOrderConfirmation(ctx, event)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		c.log.ErrorContext(ctx, "failed to store order confirmation",
			slog.String("order_number", event.OrderNumber),
			slog.String("error", err.Error()))
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == events.HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}
