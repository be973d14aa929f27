// Package kafka publishes audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "golden/pkg/platform/audit"
	"golden/pkg/platform/circuit"
	"golden/pkg/platform/sentinel"
)

// Producer is the slice of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher writes events keyed by subject so a record's events stay ordered
// within a partition. A circuit breaker stops hammering an unavailable
// broker; the outbox keeps undelivered rows for the next relay pass.
type Publisher struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("audit-kafka"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewClient builds a franz-go client for the audit topic.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

func (p *Publisher) Publish(ctx context.Context, event audit.Event) error {
	if !p.breaker.Allow() {
		return fmt.Errorf("audit broker circuit open: %w", sentinel.ErrUnavailable)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}

	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "audit broker circuit opened", "error", err)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "audit broker circuit closed")
	}
	return nil
}
