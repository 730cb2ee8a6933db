//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/adapter/kafka"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/config"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/observability"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/pipeline"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
)

const testRtTopic = "test-rt"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("rt-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type staticSource []domain.Observation

func (s staticSource) LoadObservations(context.Context) ([]domain.Observation, error) {
	return s, nil
}

// TestPipelinePublishesEstimates runs the Cori pipeline against a real broker
// and reads every published estimate back.
func TestPipelinePublishesEstimates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRtTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaRtTopic: testRtTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	start := time.Date(2022, time.March, 1, 0, 0, 0, 0, time.UTC)
	var rows staticSource
	for i := 0; i < 30; i++ {
		v := 25.0
		rows = append(rows, domain.Observation{Date: start.AddDate(0, 0, i), County: "Marin", Value: &v})
	}

	estimator := pipeline.NewEstimator(renewal.NewCori(), renewal.DefaultConfig(), 4, discardLogger())
	p := pipeline.New(rows, estimator, []pipeline.ResultSink{writer}, []string{"Marin"}, 1,
		clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	require.Positive(t, summary.Rows)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testRtTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var prev time.Time
	for i := 0; i < summary.Rows; i++ {
		msg, err := consumer.ReadMessage(ctx)
		require.NoError(t, err, "read message %d", i)

		var e domain.Estimate
		require.NoError(t, json.Unmarshal(msg.Value, &e))
		assert.Equal(t, kafka.MessageKey(e), string(msg.Key))
		assert.Equal(t, "Marin", e.County)
		assert.LessOrEqual(t, e.Lower, e.Rt)
		assert.LessOrEqual(t, e.Rt, e.Upper)
		assert.True(t, e.Date.After(prev))
		prev = e.Date

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, summary.RunID, headers["run_id"])
		assert.Equal(t, "Marin", headers["county"])
	}
}
