package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Tracely API server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Alerting   AlertingConfig
	Notify     NotifyConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type RedisConfig struct {
	URL string
}

type AlertingConfig struct {
	ThresholdInterval time.Duration
	CriticalInterval  time.Duration
	CooldownTTL       time.Duration
}

type NotifyConfig struct {
	FrontendURL     string
	ResendAPIKey    string
	ResendFromEmail string
	RetryDelay      time.Duration
	WebhookTimeout  time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("TRACELY_PORT", 8080),
			Env:  envString("TRACELY_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     envString("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: envString("CLICKHOUSE_DATABASE", "default"),
			Username: envString("CLICKHOUSE_USERNAME", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Alerting: AlertingConfig{
			ThresholdInterval: envDuration("ALERT_THRESHOLD_INTERVAL", 60*time.Second),
			CriticalInterval:  envDuration("ALERT_CRITICAL_INTERVAL", 10*time.Second),
			CooldownTTL:       envDuration("ALERT_COOLDOWN_TTL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			FrontendURL:     envString("FRONTEND_URL", "http://localhost:3000"),
			ResendAPIKey:    os.Getenv("RESEND_API_KEY"),
			ResendFromEmail: envString("RESEND_FROM_EMAIL", "alerts@tracely.io"),
			RetryDelay:      envDuration("NOTIFY_RETRY_DELAY", 30*time.Second),
			WebhookTimeout:  envDuration("NOTIFY_WEBHOOK_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.ClickHouse.Addr == "" {
		return fmt.Errorf("CLICKHOUSE_ADDR is required")
	}

	if !strings.HasPrefix(c.Notify.FrontendURL, "http://") && !strings.HasPrefix(c.Notify.FrontendURL, "https://") {
		return fmt.Errorf("FRONTEND_URL must start with http:// or https://, got %q", c.Notify.FrontendURL)
	}

	if c.Alerting.ThresholdInterval < time.Second {
		return fmt.Errorf("ALERT_THRESHOLD_INTERVAL must be at least 1s, got %s", c.Alerting.ThresholdInterval)
	}
	if c.Alerting.CriticalInterval < time.Second {
		return fmt.Errorf("ALERT_CRITICAL_INTERVAL must be at least 1s, got %s", c.Alerting.CriticalInterval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
