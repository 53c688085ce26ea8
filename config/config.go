// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"sessions.db"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// PolicyFile points at a JSON policy. Empty means the built-in defaults.
	PolicyFile string `env:"POLICY_FILE"`

	// KafkaBrokers enables the Kafka notifier and the payments consumer.
	// Empty runs without Kafka.
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotifyTopic     string   `env:"NOTIFY_TOPIC" envDefault:"booking-events"`
	PaymentsTopic   string   `env:"PAYMENTS_TOPIC" envDefault:"payment-events"`
	PaymentsGroupID string   `env:"PAYMENTS_GROUP_ID" envDefault:"session-engine"`

	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	ConferenceBaseURL string   `env:"CONFERENCE_BASE_URL" envDefault:"https://meet.example.com/room"`
	CORSOrigins       []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT must be in 1..65535, got %d", c.Port))
	}
	if c.DBPath == "" {
		problems = append(problems, "DB_PATH cannot be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	for i, b := range c.KafkaBrokers {
		if strings.TrimSpace(b) == "" {
			problems = append(problems, fmt.Sprintf("KAFKA_BROKERS entry %d is empty", i))
		}
	}
	if c.KafkaEnabled() {
		if c.NotifyTopic == "" {
			problems = append(problems, "NOTIFY_TOPIC cannot be empty when Kafka is enabled")
		}
		if c.PaymentsTopic == "" || c.PaymentsGroupID == "" {
			problems = append(problems, "PAYMENTS_TOPIC and PAYMENTS_GROUP_ID are required when Kafka is enabled")
		}
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, fmt.Sprintf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval))
	}
	if c.IdempotencyTTL <= 0 {
		problems = append(problems, fmt.Sprintf("IDEMPOTENCY_TTL must be positive, got %s", c.IdempotencyTTL))
	}
	for name, d := range map[string]time.Duration{
		"READ_TIMEOUT":     c.ReadTimeout,
		"WRITE_TIMEOUT":    c.WriteTimeout,
		"IDLE_TIMEOUT":     c.IdleTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
	} {
		if d <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %s", name, d))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	msg := "configuration validation failed:\n"
	for i, p := range problems {
		msg += fmt.Sprintf("  %d. %s\n", i+1, p)
	}
	return fmt.Errorf("%s", msg)
}
