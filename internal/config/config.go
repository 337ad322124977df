package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"plant-monitor/internal/status"
)

// Config holds all configuration values
type Config struct {
	HTTPAddr string
	LogLevel string

	// Telemetry over HTTP (request/response snapshot)
	TelemetryURL  string
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	FetchRetries  int
	RetryBackoff  time.Duration
	TelemetryWSURL string

	// Kafka
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroupID     string
	KafkaStatusTopic string
	KafkaCACert      string
	KafkaCert        string // optional client cert
	KafkaKey         string // optional client key

	// MQTT
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	// PostgreSQL status journal
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBURL      string
	DBCACert   string

	Thresholds status.Thresholds
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	// Load .env if exists
	_ = godotenv.Load() // ignore error, fallback to env vars

	p := &parser{}
	defaults := status.DefaultThresholds()

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TelemetryURL:   os.Getenv("TELEMETRY_URL"),
		PollInterval:   p.duration("TELEMETRY_POLL_INTERVAL", 10*time.Second),
		FetchTimeout:   p.duration("TELEMETRY_FETCH_TIMEOUT", 5*time.Second),
		FetchRetries:   p.integer("TELEMETRY_FETCH_RETRIES", 2),
		RetryBackoff:   p.duration("TELEMETRY_RETRY_BACKOFF", 500*time.Millisecond),
		TelemetryWSURL: os.Getenv("TELEMETRY_WS_URL"),

		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKER")),
		KafkaTopic:       os.Getenv("KAFKA_TOPIC"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "plant-monitor"),
		KafkaStatusTopic: os.Getenv("KAFKA_STATUS_TOPIC"),
		KafkaCACert:      os.Getenv("KAFKA_CA_CERT"),
		KafkaCert:        os.Getenv("KAFKA_CLIENT_CERT"),
		KafkaKey:         os.Getenv("KAFKA_CLIENT_KEY"),

		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "plant/machines/+/telemetry"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "plant-monitor"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBURL:      os.Getenv("DB_URL"),
		DBCACert:   os.Getenv("DB_CA_CERT"),

		Thresholds: status.Thresholds{
			TempTarget:       p.float("TEMP_TARGET_C", defaults.TempTarget),
			TempCeiling:      p.float("TEMP_CEILING_C", defaults.TempCeiling),
			PressureTarget:   p.float("PRESSURE_TARGET_BAR", defaults.PressureTarget),
			PressureCeiling:  p.float("PRESSURE_CEILING_BAR", defaults.PressureCeiling),
			EfficiencyTarget: p.float("EFFICIENCY_TARGET_PCT", defaults.EfficiencyTarget),
			EfficiencyFloor:  p.float("EFFICIENCY_FLOOR_PCT", defaults.EfficiencyFloor),
		},
	}

	// Build DB URL if not provided
	if cfg.DBURL == "" && cfg.DBHost != "" {
		sslMode := "disable"
		if cfg.DBCACert != "" {
			sslMode = "verify-full"
		}
		cfg.DBURL = fmt.Sprintf(
			"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, sslMode,
		)
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that parsed but do not make sense together.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}
	if c.TelemetryURL != "" && c.PollInterval <= 0 {
		errs = append(errs, errors.New("TELEMETRY_POLL_INTERVAL must be positive"))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, errors.New("TELEMETRY_FETCH_RETRIES must not be negative"))
	}
	if (c.KafkaTopic != "" || c.KafkaStatusTopic != "") && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKER is required when a Kafka topic is set"))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether telemetry should be consumed from Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// JournalEnabled reports whether status changes should be written to PostgreSQL.
func (c *Config) JournalEnabled() bool {
	return c.DBURL != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser collects every bad value so a misconfigured deployment reports them all at once.
type parser struct {
	errs []error
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *parser) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return i
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
