package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "output/data_ww_CA_county.csv", cfg.InputPath)
	assert.Equal(t, "output/data_Rt_ww_CA.csv", cfg.OutputPath)
	assert.Equal(t, "Cases_N", cfg.SignalColumn)
	assert.Equal(t, 4.0, cfg.ScaleFactor)
	assert.Equal(t, 4, cfg.Workers)
	assert.Empty(t, cfg.ReferencePath)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, "http://publichealth.verily.com/api/csv", cfg.UpstreamURL)
	assert.Equal(t, 60*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 3, cfg.UpstreamRetries)
	assert.Equal(t, 2*time.Second, cfg.UpstreamRetryBackoff)
	assert.Equal(t, "data/data.csv", cfg.ScanPath)
	assert.Equal(t, "data/data_ww_Eurofins.csv", cfg.EurofinsPath)
	assert.Equal(t, "output/data_ww_CA_county.csv", cfg.SeriesPath)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "wastewater-rt", cfg.KafkaRtTopic)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.RunInterval)
	assert.Equal(t, 3, cfg.RunRetries)
	assert.Equal(t, time.Minute, cfg.RunRetryBackoff)
	assert.Equal(t, 15*time.Minute, cfg.MaxRetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	assert.Equal(t, renewal.DefaultConfig(), cfg.Renewal())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("INPUT_PATH", "in.csv")
	t.Setenv("OUTPUT_PATH", "out.csv")
	t.Setenv("SIGNAL_COLUMN", "SC2_N_norm_PMMoV")
	t.Setenv("SCALE_FACTOR", "2.5")
	t.Setenv("WORKERS", "8")
	t.Setenv("REFERENCE_PATH", "ref.yaml")
	t.Setenv("SMOOTHING_WINDOW", "5")
	t.Setenv("RT_WINDOW", "14")
	t.Setenv("PRIOR_SCALE", "2")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_RT_TOPIC", "rt")
	t.Setenv("SQLITE_PATH", "rt.db")
	t.Setenv("RUN_INTERVAL", "6h")
	t.Setenv("RUN_RETRIES", "0")
	t.Setenv("UPSTREAM_RETRY_BACKOFF", "500ms")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "in.csv", cfg.InputPath)
	assert.Equal(t, "out.csv", cfg.OutputPath)
	assert.Equal(t, "SC2_N_norm_PMMoV", cfg.SignalColumn)
	assert.Equal(t, 2.5, cfg.ScaleFactor)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "ref.yaml", cfg.ReferencePath)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "rt", cfg.KafkaRtTopic)
	assert.Equal(t, "rt.db", cfg.SQLitePath)
	assert.Equal(t, 6*time.Hour, cfg.RunInterval)
	assert.Zero(t, cfg.RunRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.UpstreamRetryBackoff)
	assert.Equal(t, "text", cfg.LogFormat)

	rc := cfg.Renewal()
	assert.Equal(t, 5, rc.SmoothingWindow)
	assert.Equal(t, 14, rc.Window)
	assert.Equal(t, 2.0, rc.PriorScale)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SCALE_FACTOR", "0"},
		{"SCALE_FACTOR", "many"},
		{"WORKERS", "0"},
		{"WORKERS", "999"},
		{"WORKERS", "four"},
		{"SMOOTHING_WINDOW", "6"},
		{"RT_WINDOW", "0"},
		{"SERIAL_INTERVAL_SD", "-1"},
		{"PRIOR_SHAPE", "0"},
		{"UPSTREAM_TIMEOUT", "soon"},
		{"RUN_INTERVAL", "-1h"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"ESTIMATE_CACHE_SIZE", "-1"},
		{"UPSTREAM_RETRIES", "11"},
		{"RUN_RETRIES", "-1"},
		{"RUN_RETRY_BACKOFF", "0s"},
		{"MAX_RETRY_BACKOFF", "later"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_KafkaTopicRequiredWithBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_RT_TOPIC", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_RT_TOPIC")
}

func TestLoad_EmptyPathRejected(t *testing.T) {
	t.Setenv("OUTPUT_PATH", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OUTPUT_PATH")
}

func TestLoad_BrokerListTrimmed(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092 ,, b:9092 ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}
