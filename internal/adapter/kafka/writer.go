// Package kafka publishes generation events so downstream consumers
// (routing exports, fleet dashboards) learn about new polar versions.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sailpolar/polar-service/internal/domain"
)

// Writer produces polar-generated events to a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the given brokers and topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// NotifyGenerated publishes one summary, keyed by boat so a consumer sees
// a boat's versions in order.
func (w *Writer) NotifyGenerated(ctx context.Context, summary domain.Summary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	w.logger.Debug("generation event published",
		"topic", w.writer.Topic, "boat", summary.Boat, "version", summary.Version)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Summary into a Kafka message.
func serializeToMessage(summary domain.Summary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize generation event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.Boat),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "boat", Value: []byte(summary.Boat)},
			{Key: "version", Value: []byte(strconv.Itoa(summary.Version))},
		},
	}, nil
}
