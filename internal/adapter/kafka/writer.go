package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/config"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

// messageWriter is the subset of kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes Rt estimates to a Kafka topic, one message per row.
// It implements pipeline.ResultSink.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured Rt topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRtTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs.
func (w *Writer) Name() string { return "kafka" }

// WriteResults serializes every row of the run and publishes them in a
// single WriteMessages call. Rows of one county share a partition.
func (w *Writer) WriteResults(ctx context.Context, summary domain.RunSummary, rows domain.CombinedResult) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(summary.RunID, rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d estimates: %w", len(msgs), err)
	}
	w.logger.Info("estimates published", "run_id", summary.RunID, "messages", len(msgs))
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey is the partition key of an estimate: county and date.
func MessageKey(e domain.Estimate) string {
	return e.County + "|" + e.Date.Format(time.DateOnly)
}

// serializeToMessage marshals an Estimate into a Kafka message.
func serializeToMessage(runID string, e domain.Estimate) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize estimate %s: %w", MessageKey(e), err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(e)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "county", Value: []byte(e.County)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
