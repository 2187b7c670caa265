package config

import (
	"errors"
	"fabtracker/internal/app/helpers"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"

	LockMemory   = "memory"
	LockRedis    = "redis"
	LockDatabase = "database"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	App        AppConfig
	Discord    DiscordConfig
	Database   DatabaseConfig
	Lock       LockConfig
	Scheduler  SchedulerConfig
	Dispatcher DispatcherConfig
	Scraper    ScraperConfig
	Server     ServerConfig
}

type AppConfig struct {
	Timezone        string `envconfig:"TIMEZONE" default:"Europe/Paris"`
	DefaultLanguage string `envconfig:"DEFAULT_LANGUAGE" default:"en"`
	DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"USD"`
	BaseCurrency    string `envconfig:"BASE_CURRENCY" default:"USD"`
	LogFile         string `envconfig:"LOG_FILE" default:"app.log"`
	LogSilent       bool   `envconfig:"LOG_SILENT" default:"false"`
}

type DiscordConfig struct {
	Token  string `envconfig:"DISCORD_BOT_TOKEN"`
	ApiUrl string `envconfig:"DISCORD_API_URL" default:"https://discord.com/api/v10"`
	// Requests per second towards the REST API.
	RateLimit float64 `envconfig:"DISCORD_RATE_LIMIT" default:"1"`
}

type DatabaseConfig struct {
	Driver     string `envconfig:"DB_DRIVER" default:"postgres"`
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	Username   string `envconfig:"DB_USERNAME" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD"`
	Database   string `envconfig:"DB_DATABASE" default:"fabtracker"`
	SqlitePath string `envconfig:"SQLITE_PATH" default:"data/fabtracker.db"`
}

type LockConfig struct {
	Driver        string        `envconfig:"LOCK_DRIVER" default:"memory"`
	StaleAfter    time.Duration `envconfig:"LOCK_STALE_AFTER" default:"2h"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `envconfig:"SCHEDULER_POLL_INTERVAL" default:"1m"`
}

type DispatcherConfig struct {
	BatchSize  int           `envconfig:"DISPATCH_BATCH_SIZE" default:"5"`
	BatchDelay time.Duration `envconfig:"DISPATCH_BATCH_DELAY" default:"7m"`
	RetryDelay time.Duration `envconfig:"DISPATCH_RETRY_DELAY" default:"5s"`
}

type ScraperConfig struct {
	Timeout  time.Duration `envconfig:"SCRAPER_TIMEOUT" default:"60s"`
	Retries  int           `envconfig:"SCRAPER_RETRIES" default:"3"`
	DelayMin time.Duration `envconfig:"SCRAPER_DELAY_MIN" default:"2s"`
	DelayMax time.Duration `envconfig:"SCRAPER_DELAY_MAX" default:"5s"`
	Headless bool          `envconfig:"SCRAPER_HEADLESS" default:"true"`
}

type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load .env from the root directory (if present) and read configuration from environment.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Check values that envconfig can't check by itself.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSqlite:
	default:
		return fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalidConfig, c.Database.Driver)
	}

	switch c.Lock.Driver {
	case LockMemory, LockRedis, LockDatabase:
	default:
		return fmt.Errorf("%w: unknown LOCK_DRIVER %q", ErrInvalidConfig, c.Lock.Driver)
	}


	if c.Dispatcher.BatchSize < 1 {
		return fmt.Errorf("%w: DISPATCH_BATCH_SIZE must be positive", ErrInvalidConfig)
	}

	if c.Scraper.DelayMax < c.Scraper.DelayMin {
		return fmt.Errorf("%w: SCRAPER_DELAY_MAX is lower than SCRAPER_DELAY_MIN", ErrInvalidConfig)
	}

	if _, err := helpers.ParseCurrency(c.App.BaseCurrency); err != nil {
		return fmt.Errorf("%w: BASE_CURRENCY: %v", ErrInvalidConfig, err)
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("%w: TIMEZONE: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Postgres connection string.
func (d *DatabaseConfig) PostgresDsn() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.Username, d.Password),
		Host:   helpers.ConcatStrings(d.Host, ":", strconv.Itoa(d.Port)),
		Path:   helpers.ConcatStrings("/", d.Database),
	}

	return dsn.String()
}

// SQLite path resolved against the root directory.
func (d *DatabaseConfig) SqliteFile() string {
	if filepath.IsAbs(d.SqlitePath) || d.SqlitePath == ":memory:" {
		return d.SqlitePath
	}

	rootDir, err := helpers.GetRootDir()
	if err != nil {
		return d.SqlitePath
	}

	return filepath.Join(rootDir, d.SqlitePath)
}

func loadEnvFile() error {
	rootDir, err := helpers.GetRootDir()
	if err != nil {
		return nil
	}

	filePath := filepath.Join(rootDir, ".env")
	if _, err := os.Stat(filePath); err != nil {
		return nil
	}

	if err := godotenv.Load(filePath); err != nil {
		return fmt.Errorf("unable to load .env file: %w", err)
	}

	return nil
}
