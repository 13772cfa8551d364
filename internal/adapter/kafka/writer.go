// Package kafka publishes condition transitions to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/condition-oracle/internal/config"
	"github.com/couchcryptid/condition-oracle/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces transition messages to a Kafka topic.
// It implements watch.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured transitions topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes all transitions in a single WriteMessages call. Messages
// are keyed by watch name so that each watch's changes stay ordered within a
// partition.
func (w *Writer) Publish(ctx context.Context, transitions []domain.Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(transitions))
	for i := range transitions {
		msg, err := serializeToMessage(transitions[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d transitions: %w", len(msgs), err)
	}
	w.logger.Debug("published transitions", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(t domain.Transition) (kafkago.Message, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize transition: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(t.Watch),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "watch", Value: []byte(t.Watch)},
			{Key: "evaluated_at", Value: []byte(t.EvaluatedAt.Format(time.RFC3339))},
		},
	}, nil
}
