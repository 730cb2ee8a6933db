package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/viper"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/renewal"
)

// Config holds all settings, populated from environment variables.
type Config struct {
	// Estimation run.
	InputPath     string
	OutputPath    string
	SignalColumn  string
	ScaleFactor   float64
	Workers       int
	ReferencePath string
	CacheSize     int

	// Renewal engine.
	SmoothingWindow       int
	RtWindow              int
	SerialIntervalMean    float64
	SerialIntervalSD      float64
	SerialIntervalMaxDays int
	PriorShape            float64
	PriorScale            float64

	// Series builder.
	UpstreamURL          string
	UpstreamTimeout      time.Duration
	UpstreamRetries      int
	UpstreamRetryBackoff time.Duration
	ScanPath        string
	EurofinsPath    string
	SeriesPath      string

	// Optional sinks.
	KafkaBrokers []string
	KafkaRtTopic string
	SQLitePath   string

	// Service mode.
	HTTPAddr        string
	RunInterval     time.Duration
	RunRetries      int
	RunRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string
}

const (
	maxWorkers = 64
	maxRetries = 10
)

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	setDefaults(v)

	p := parser{v: v}
	cfg := &Config{
		InputPath:     v.GetString("input_path"),
		OutputPath:    v.GetString("output_path"),
		SignalColumn:  v.GetString("signal_column"),
		ScaleFactor:   p.positiveFloat("scale_factor"),
		Workers:       p.intInRange("workers", 1, maxWorkers),
		ReferencePath: v.GetString("reference_path"),
		CacheSize:     p.intInRange("estimate_cache_size", 0, 1<<20),

		SmoothingWindow:       p.intInRange("smoothing_window", 1, 365),
		RtWindow:              p.intInRange("rt_window", 1, 365),
		SerialIntervalMean:    p.positiveFloat("serial_interval_mean"),
		SerialIntervalSD:      p.positiveFloat("serial_interval_sd"),
		SerialIntervalMaxDays: p.intInRange("serial_interval_max_days", 1, 365),
		PriorShape:            p.positiveFloat("prior_shape"),
		PriorScale:            p.positiveFloat("prior_scale"),

		UpstreamURL:          v.GetString("upstream_url"),
		UpstreamTimeout:      p.positiveDuration("upstream_timeout"),
		UpstreamRetries:      p.intInRange("upstream_retries", 0, maxRetries),
		UpstreamRetryBackoff: p.positiveDuration("upstream_retry_backoff"),
		ScanPath:        v.GetString("scan_path"),
		EurofinsPath:    v.GetString("eurofins_path"),
		SeriesPath:      v.GetString("series_path"),

		KafkaBrokers: sharedcfg.ParseBrokers(v.GetString("kafka_brokers")),
		KafkaRtTopic: v.GetString("kafka_rt_topic"),
		SQLitePath:   v.GetString("sqlite_path"),

		HTTPAddr:        v.GetString("http_addr"),
		RunInterval:     p.positiveDuration("run_interval"),
		RunRetries:      p.intInRange("run_retries", 0, maxRetries),
		RunRetryBackoff: p.positiveDuration("run_retry_backoff"),
		MaxRetryBackoff: p.positiveDuration("max_retry_backoff"),
		ShutdownTimeout: p.positiveDuration("shutdown_timeout"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.SmoothingWindow%2 == 0 {
		return nil, fmt.Errorf("SMOOTHING_WINDOW must be odd, got %d", cfg.SmoothingWindow)
	}
	if cfg.InputPath == "" {
		return nil, fmt.Errorf("INPUT_PATH is required")
	}
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("OUTPUT_PATH is required")
	}
	if cfg.SignalColumn == "" {
		return nil, fmt.Errorf("SIGNAL_COLUMN is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaRtTopic == "" {
		return nil, fmt.Errorf("KAFKA_RT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// Renewal returns the engine settings.
func (c *Config) Renewal() renewal.Config {
	return renewal.Config{
		Window:                c.RtWindow,
		SmoothingWindow:       c.SmoothingWindow,
		SerialIntervalMean:    c.SerialIntervalMean,
		SerialIntervalSD:      c.SerialIntervalSD,
		SerialIntervalMaxDays: c.SerialIntervalMaxDays,
		PriorShape:            c.PriorShape,
		PriorScale:            c.PriorScale,
	}
}

func setDefaults(v *viper.Viper) {
	rc := renewal.DefaultConfig()

	v.SetDefault("input_path", "output/data_ww_CA_county.csv")
	v.SetDefault("output_path", "output/data_Rt_ww_CA.csv")
	v.SetDefault("signal_column", "Cases_N")
	v.SetDefault("scale_factor", "4")
	v.SetDefault("workers", "4")
	v.SetDefault("reference_path", "")
	v.SetDefault("estimate_cache_size", "256")

	v.SetDefault("smoothing_window", strconv.Itoa(rc.SmoothingWindow))
	v.SetDefault("rt_window", strconv.Itoa(rc.Window))
	v.SetDefault("serial_interval_mean", formatFloat(rc.SerialIntervalMean))
	v.SetDefault("serial_interval_sd", formatFloat(rc.SerialIntervalSD))
	v.SetDefault("serial_interval_max_days", strconv.Itoa(rc.SerialIntervalMaxDays))
	v.SetDefault("prior_shape", formatFloat(rc.PriorShape))
	v.SetDefault("prior_scale", formatFloat(rc.PriorScale))

	v.SetDefault("upstream_url", "http://publichealth.verily.com/api/csv")
	v.SetDefault("upstream_timeout", "60s")
	v.SetDefault("upstream_retries", "3")
	v.SetDefault("upstream_retry_backoff", "2s")
	v.SetDefault("scan_path", "data/data.csv")
	v.SetDefault("eurofins_path", "data/data_ww_Eurofins.csv")
	v.SetDefault("series_path", "output/data_ww_CA_county.csv")

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_rt_topic", "wastewater-rt")
	v.SetDefault("sqlite_path", "")

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("run_interval", "24h")
	v.SetDefault("run_retries", "3")
	v.SetDefault("run_retry_backoff", "1m")
	v.SetDefault("max_retry_backoff", "15m")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// parser records the first invalid variable so Load can report it after
// reading everything.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key, format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %s", strings.ToUpper(key), fmt.Sprintf(format, args...))
	}
}

func (p *parser) intInRange(key string, lo, hi int) int {
	raw := p.v.GetString(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, "%q is not an integer", raw)
		return 0
	}
	if n < lo || n > hi {
		p.fail(key, "%d is outside %d..%d", n, lo, hi)
	}
	return n
}

func (p *parser) positiveFloat(key string) float64 {
	raw := p.v.GetString(key)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, "%q is not a number", raw)
		return 0
	}
	if !(f > 0) {
		p.fail(key, "must be positive, got %g", f)
	}
	return f
}

func (p *parser) positiveDuration(key string) time.Duration {
	raw := p.v.GetString(key)
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, "%q is not a duration", raw)
		return 0
	}
	if d <= 0 {
		p.fail(key, "must be positive, got %s", d)
	}
	return d
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
