package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/session-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sessions.db", cfg.DBPath)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	// GIVEN: Overrides in the environment
	t.Setenv("PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("POLICY_FILE", "/etc/sessions/policy.json")

	// WHEN: Loaded
	cfg, err := config.Load()

	// THEN: They win over the defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "/etc/sessions/policy.json", cfg.PolicyFile)
}

func TestLoad_Unparseable(t *testing.T) {
	t.Setenv("PORT", "eighty")

	_, err := config.Load()

	assert.Error(t, err)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	// GIVEN: Several invalid settings at once
	t.Setenv("PORT", "0")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("SWEEP_INTERVAL", "-1s")

	// WHEN: Loaded
	_, err := config.Load()

	// THEN: All of them appear in one error
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
}

func TestValidate_KafkaTopicsRequired(t *testing.T) {
	// GIVEN: A loaded config with Kafka on but no payments topic
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.PaymentsTopic = ""

	// WHEN/THEN: Validation names the missing setting
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENTS_TOPIC")

	cfg.KafkaBrokers = nil
	assert.NoError(t, cfg.Validate())
}
