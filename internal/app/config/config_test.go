package config_test

import (
	"fabtracker/internal/app/config"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOCK_DRIVER", "memory")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Dispatcher.BatchSize)
	assert.Equal(t, 7*time.Minute, cfg.Dispatcher.BatchDelay)
	assert.Equal(t, time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, 2*time.Hour, cfg.Lock.StaleAfter)
	assert.Equal(t, "USD", cfg.App.BaseCurrency)
	assert.Equal(t, "Europe/Paris", cfg.App.Timezone)
	assert.Equal(t, 3, cfg.Scraper.Retries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("LOCK_DRIVER", "redis")
	t.Setenv("DISPATCH_BATCH_SIZE", "3")
	t.Setenv("DISPATCH_BATCH_DELAY", "90s")
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Dispatcher.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Dispatcher.BatchDelay)
	assert.Equal(t, "cache:6380", cfg.Lock.RedisAddr)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(cfg *config.Config){
		"unknown db driver":   func(cfg *config.Config) { cfg.Database.Driver = "mysql" },
		"unknown lock driver": func(cfg *config.Config) { cfg.Lock.Driver = "etcd" },
		"zero batch":          func(cfg *config.Config) { cfg.Dispatcher.BatchSize = 0 },
		"delay range":         func(cfg *config.Config) { cfg.Scraper.DelayMax = time.Second },
		"bad currency":        func(cfg *config.Config) { cfg.App.BaseCurrency = "DOLLARS" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)

			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}

	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestPostgresDsnEscapesPassword(t *testing.T) {
	db := config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		Username: "fab",
		Password: "p@ss word",
		Database: "tracker",
	}

	assert.Equal(t, "postgres://fab:p%40ss%20word@db:5432/tracker", db.PostgresDsn())
}

func validConfig() config.Config {
	return config.Config{
		App:        config.AppConfig{Timezone: "UTC", BaseCurrency: "USD"},
		Database:   config.DatabaseConfig{Driver: config.DriverSqlite},
		Lock:       config.LockConfig{Driver: config.LockMemory},
		Dispatcher: config.DispatcherConfig{BatchSize: 5},
		Scraper:    config.ScraperConfig{DelayMin: 2 * time.Second, DelayMax: 5 * time.Second},
	}
}
