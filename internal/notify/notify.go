// Package notify announces stored batches to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/segmentio/kafka-go"
)

// Event describes one stored batch.
type Event struct {
	Kind       string    `json:"kind"`
	APIVersion string    `json:"api_version"`
	Path       string    `json:"path"`
	Latest     time.Time `json:"latest"`
	Size       int64     `json:"size"`
	Fallback   bool      `json:"fallback"`
}

// NewEvent builds the event for a batch of feed stored as f.
func NewEvent(feed model.SubFeed, f model.StoredFile) Event {
	return Event{
		Kind:       feed.Kind,
		APIVersion: feed.APIVersion,
		Path:       f.Path,
		Latest:     f.Latest.UTC(),
		Size:       f.Size,
		Fallback:   f.Fallback,
	}
}

// Publisher sends events for stored batches.
type Publisher interface {
	Publish(ctx context.Context, feed model.SubFeed, f model.StoredFile) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, model.SubFeed, model.StoredFile) error { return nil }
func (Nop) Close() error                                                  { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by sub-feed id, so
// that events of one sub-feed stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) (*KafkaPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(w, timeout), nil
}

func newKafkaPublisher(w messageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaPublisher{writer: w, timeout: timeout}
}

// Publish writes the event for f.
func (p *KafkaPublisher) Publish(ctx context.Context, feed model.SubFeed, f model.StoredFile) error {
	value, err := json.Marshal(NewEvent(feed, f))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(feed.ID()),
		Value: value,
		Time:  f.StoredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", feed.ID(), err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
