// Package notify delivers fulfillment notification payloads.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/erazemk/oprema/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notifications as JSON messages keyed by event ID, so that
// the notifications of one event stay ordered within a partition.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates a publisher for topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Notify publishes n.
func (k *Kafka) Notify(ctx context.Context, n model.Notification) error {
	const op = "notify.Kafka.Notify"

	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%s: encoding: %w", op, err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(n.EventID, 10)),
		Value: value,
		Time:  n.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
			{Key: "id", Value: []byte(n.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
