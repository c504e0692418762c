package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// Producer is the synchronous publisher behind the change-event relay
// and the mail queue. Writes are idempotent and wait for all in-sync
// replicas, so a published event is durable before the relay moves on.
type Producer struct {
	sp sarama.SyncProducer
}

// NewProducer dials the brokers. A nil cfg gets sarama defaults with
// the durability settings applied on top; a caller-supplied cfg keeps
// its tuning but the ack and idempotency settings are still enforced.
func NewProducer(brokers []string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.Compression = sarama.CompressionSnappy
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: dial brokers: %w", err)
	}
	return &Producer{sp: sp}, nil
}

// Publish sends one keyed message and blocks until it is acked. Rows
// for the same table key onto the same partition, preserving per-row
// event order for downstream consumers.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	if _, _, err := p.sp.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.sp == nil {
		return nil
	}
	return p.sp.Close()
}
