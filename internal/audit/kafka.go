package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/grendelpress/manuscript-vault/internal/config"
)

// messageWriter is the part of *kafka.Writer the shipper uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaShipper publishes audit entries to a Kafka topic. Entries are keyed by book
// so every event for one manuscript lands on the same partition, in order.
type KafkaShipper struct {
	writer messageWriter
	topic  string
}

// NewKafkaShipper creates a shipper writing to cfg.Topic on cfg.Brokers.
func NewKafkaShipper(cfg *config.AuditKafkaConfig) (*KafkaShipper, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka shipper requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka shipper requires a topic")
	}
	return &KafkaShipper{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: cfg.Topic,
	}, nil
}

// Ship publishes one entry. The partition key is the book id, or the action when
// the entry is not tied to a book.
func (ks *KafkaShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	key := entry.BookID
	if key == "" {
		key = entry.Action
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if err := ks.writer.WriteMessages(ctx, kafka.Message{
		Topic: ks.topic,
		Key:   []byte(key),
		Value: data,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (ks *KafkaShipper) Close() error {
	return ks.writer.Close()
}
