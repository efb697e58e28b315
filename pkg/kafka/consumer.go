// Package kafka carries module events over segmentio/kafka-go. Producers
// serialise events as JSON and stamp the request ID header; the consumer
// restores it into the handler context and retries transient failures.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/resilience"
)

// RequestIDHeader is the message header carrying the originating request ID.
const RequestIDHeader = "request_id"

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that retrying cannot fix. The consumer logs the
// message and commits past it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			ShouldRetry: func(err error) bool { return !IsPermanent(err) },
		},
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if !c.process(ctx, msg) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler with retries and reports whether the message
// should be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	hctx := ctx
	if id := header(msg, RequestIDHeader); id != "" {
		hctx = logger.WithRequestID(ctx, id)
	}
	err := resilience.Retry(ctx, "handle-message", c.retry, func() error {
		return c.handler(hctx, msg.Key, msg.Value)
	})
	switch {
	case IsPermanent(err):
		c.logger.Warn("dropping message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return true
	case err != nil:
		c.logger.Error("failed to process message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return false
	}
	return true
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Decode failures are
// permanent.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, Permanent(fmt.Errorf("decoding kafka message: %w", err))
	}
	return result, nil
}
