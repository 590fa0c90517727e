package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/metrics"
)

// Handler processes one message payload. A non-nil error marks the
// message failed; the consumer logs it and commits the offset anyway,
// so handlers own idempotency under redelivery.
type Handler func(ctx context.Context, value []byte) error

// Consumer reads one topic inside a consumer group and feeds every
// message to its handler. Offsets are committed after handling, which
// gives at-least-once delivery.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	handler Handler
	logger  *zap.Logger
}

// NewConsumer creates a consumer for one topic. Each topic gets its own
// group id so the streams rebalance independently of each other.
func NewConsumer(brokers []string, groupID, topic string, handler Handler, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     fmt.Sprintf("%s-%s", groupID, topic),
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{
		reader:  reader,
		topic:   topic,
		handler: handler,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("Starting consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.Info("Consumer stopped", zap.String("topic", c.topic))
				return
			}
			c.logger.Error("Failed to fetch message",
				zap.String("topic", c.topic),
				zap.Error(err))
			continue
		}

		start := time.Now()
		if err := c.handler(ctx, msg.Value); err != nil {
			metrics.RecordMessage(c.topic, "error", time.Since(start))
			c.logger.Error("Failed to handle message",
				zap.String("topic", c.topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		} else {
			metrics.RecordMessage(c.topic, "ok", time.Since(start))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error("Failed to commit offset",
				zap.String("topic", c.topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

// Close shuts the underlying reader down, unblocking Run.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
