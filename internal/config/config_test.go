package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, time.Minute, cfg.Sweep.Interval())
	assert.Equal(t, 4, cfg.Notification.Workers)
	assert.Equal(t, 1000, cfg.Notification.HistorySize)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "POSTGRES")
	t.Setenv("POSTGRES_DSN", "postgres://x@localhost/db")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("ESCALATION_RETRY_BACKOFF_MS", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Sweep.Interval())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 20*time.Millisecond, cfg.Sweep.RetryBackoff())
}

func TestValidateRejects(t *testing.T) {
	base := Config{
		Store:        StoreConfig{Driver: DriverMemory},
		Sweep:        SweepConfig{IntervalSeconds: 1},
		Notification: NotificationConfig{Workers: 1},
		Team:         TeamConfig{Timezone: "UTC"},
	}
	require.NoError(t, base.Validate())

	pg := base
	pg.Store.Driver = DriverPostgres
	assert.Error(t, pg.Validate())

	unknown := base
	unknown.Store.Driver = "mongo"
	assert.Error(t, unknown.Validate())

	badTZ := base
	badTZ.Team.Timezone = "Mars/Olympus"
	assert.Error(t, badTZ.Validate())

	noSweep := base
	noSweep.Sweep.IntervalSeconds = 0
	assert.Error(t, noSweep.Validate())
}
