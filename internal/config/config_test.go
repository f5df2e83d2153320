package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Custody.Driver)
	assert.Equal(t, "oprema-custody.db", cfg.Custody.DSN)
	assert.Equal(t, "oprema-events.db", cfg.Events.DSN)
	assert.Equal(t, 4, cfg.Retry.Attempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.5, cfg.Weights.Base)
	assert.Equal(t, -0.2, cfg.Weights.AcademicWeekend)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPREMA_EVENTS_DRIVER", "pgx")
	t.Setenv("OPREMA_EVENTS_DSN", "postgres://localhost/events")
	t.Setenv("OPREMA_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("OPREMA_TIMEZONE", "Europe/Ljubljana")
	t.Setenv("OPREMA_WEIGHT_AFTER", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Events.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "Europe/Ljubljana", cfg.Location().String())
	assert.Equal(t, 0.25, cfg.Weights.After)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"driver", "OPREMA_CUSTODY_DRIVER", "mysql"},
		{"postgres without dsn", "OPREMA_EVENTS_DRIVER", "pgx"},
		{"log format", "OPREMA_LOG_FORMAT", "xml"},
		{"timezone", "OPREMA_TIMEZONE", "Mars/Olympus"},
		{"retry attempts", "OPREMA_RETRY_ATTEMPTS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
