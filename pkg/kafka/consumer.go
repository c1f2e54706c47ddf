// Package kafka wraps segmentio/kafka-go for the classifier's streaming
// worker. Messages carry JSON bodies; the request ID travels in a header.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/resilience"
)

// RequestIDHeader carries the originating request ID across topics.
const RequestIDHeader = "x-request-id"

// ErrSkip tells the consumer to commit a message it could not process.
// Handlers wrap it around poison messages that would fail on every retry.
var ErrSkip = errors.New("skip message")

// Message is the handler's view of a fetched record.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	RequestID string
}

// MessageHandler is invoked for each fetched message. Returning nil or an
// error wrapping ErrSkip commits the offset. Any other error makes the
// consumer call the handler again for the same message after a backoff;
// later offsets are not fetched until it succeeds.
type MessageHandler func(ctx context.Context, msg Message) error

// Reader is the subset of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic and dispatches each message to a handler.
type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	handler MessageHandler
	backoff resilience.RetryConfig
}

// NewConsumer creates a consumer-group reader for topic.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return NewConsumerWithReader(r, topic, handler)
}

// NewConsumerWithReader builds a consumer over an existing reader.
func NewConsumerWithReader(r Reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		backoff: resilience.RetryConfig{InitialDelay: 200 * time.Millisecond, MaxDelay: 30 * time.Second},
	}
}

// WithBackoff sets the delay schedule between handler retries.
func (c *Consumer) WithBackoff(cfg resilience.RetryConfig) *Consumer {
	c.backoff = cfg
	return c
}

// Start runs the consume loop until ctx is cancelled or the reader fails
// permanently.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			return fmt.Errorf("fetching message: %w", err)
		}

		m := Message{
			Key:       msg.Key,
			Value:     msg.Value,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			RequestID: header(msg.Headers, RequestIDHeader),
		}
		hctx := ctx
		if m.RequestID != "" {
			hctx = logger.WithRequestID(ctx, m.RequestID)
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"value_size", len(msg.Value),
		)

		if !c.process(hctx, m) {
			c.logger.Info("consumer stopping", "reason", ctx.Err(), "uncommitted_offset", msg.Offset)
			return nil
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

// process runs the handler until it succeeds or skips the message. It
// returns false when ctx ends first; the message is then left uncommitted.
func (c *Consumer) process(ctx context.Context, m Message) bool {
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrSkip) {
			c.logger.Warn("skipping message", "partition", m.Partition, "offset", m.Offset, "error", err)
			return true
		}
		delay := c.backoff.Backoff(attempt)
		c.logger.Error("failed to process message, retrying",
			"partition", m.Partition,
			"offset", m.Offset,
			"attempt", attempt,
			"next_delay", delay,
			"error", err,
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T. Failures wrap ErrSkip
// since a malformed body never decodes on redelivery.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("%w: decoding kafka message: %v", ErrSkip, err)
	}
	return result, nil
}

func header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
