// Package kafka publishes score-recorded notifications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
)

// DefaultTopic is the topic notifications are written to unless overridden.
const DefaultTopic = "highscore.scores"

// MessageType is carried in the type header of every notification.
const MessageType = "score.recorded"

const typeHeader = "X-Message-Type"

// ErrNoBrokers is returned when a publisher is built without any broker
// address.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes notifications to Kafka, keyed by game so that every
// notification for one game lands on the same partition.
type Publisher struct {
	w            MessageWriter
	topic        string
	batchTimeout time.Duration
	logger       logger.Logger
}

// Option configures a Publisher.
type Option func(*config)

type config struct {
	topic        string
	batchTimeout time.Duration
	logger       logger.Logger
}

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(c *config) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithBatchTimeout sets how long the writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithLogger sets the logger used for writer errors.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		topic:        DefaultTopic,
		batchTimeout: 100 * time.Millisecond,
		logger:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewPublisher builds a publisher backed by a kafka-go writer for brokers.
func NewPublisher(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	c := newConfig(opts)
	log := c.logger.Named("kafka")

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        c.topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: c.batchTimeout,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(context.Background(), fmt.Sprintf(msg, args...))
		}),
	}
	return &Publisher{w: w, topic: c.topic, batchTimeout: c.batchTimeout, logger: log}, nil
}

// NewPublisherWithWriter wraps an existing writer. The writer must already
// be bound to its topic.
func NewPublisherWithWriter(w MessageWriter, opts ...Option) *Publisher {
	c := newConfig(opts)
	return &Publisher{w: w, topic: c.topic, batchTimeout: c.batchTimeout, logger: c.logger.Named("kafka")}
}

// Name implements worker.Publisher.
func (*Publisher) Name() string { return "kafka" }

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// BatchTimeout returns how long the writer waits to fill a batch.
func (p *Publisher) BatchTimeout() time.Duration { return p.batchTimeout }

// Publish implements worker.Publisher.
func (p *Publisher) Publish(ctx context.Context, e model.ScoreRecorded) error {
	msg, err := Encode(e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", e.Submission.ID, p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// Encode renders a notification as a Kafka message.
func Encode(e model.ScoreRecorded) (kafka.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal notification: %w", err)
	}
	return kafka.Message{
		Key:     []byte(e.Submission.GameID),
		Value:   body,
		Headers: []kafka.Header{{Key: typeHeader, Value: []byte(MessageType)}},
		Time:    e.Submission.CreatedAt,
	}, nil
}

// Decode parses a message produced by Encode.
func Decode(m kafka.Message) (model.ScoreRecorded, error) {
	var e model.ScoreRecorded
	for _, h := range m.Headers {
		if h.Key == typeHeader && string(h.Value) != MessageType {
			return e, fmt.Errorf("unexpected message type %q", h.Value)
		}
	}
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return e, fmt.Errorf("unmarshal notification: %w", err)
	}
	return e, nil
}
