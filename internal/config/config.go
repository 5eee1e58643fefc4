package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/firesafe-notify/internal/domain"
)

const (
	UsageBackendPostgres = "postgres"
	UsageBackendRedis    = "redis"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	SMSEnabled         bool          `env:"SMS_ENABLED,default=false"`
	SMSGatewayURL      string        `env:"SMS_GATEWAY_URL"`
	SMSUsername        string        `env:"SMS_USERNAME"`
	SMSPassword        string        `env:"SMS_PASSWORD"`
	SMSSenderID        string        `env:"SMS_SENDER_ID"`
	SMSDailyLimit      int           `env:"SMS_DAILY_LIMIT,default=1000"`
	SMSCountryCode     string        `env:"SMS_COUNTRY_CODE,default=94"`
	SMSGatewayTimeout  time.Duration `env:"SMS_GATEWAY_TIMEOUT,default=15s"`
	SMSRateLimitPerSec int           `env:"SMS_RATE_LIMIT_PER_SEC,default=10"`
	UsageBackend       string        `env:"USAGE_COUNTER_BACKEND,default=postgres"`

	ComplianceThresholdDays  int           `env:"COMPLIANCE_THRESHOLD_DAYS,default=30"`
	MaintenanceThresholdDays int           `env:"MAINTENANCE_THRESHOLD_DAYS,default=7"`
	SchedulerCron            string        `env:"SCHEDULER_CRON,default=0 8 * * *"`
	SchedulerSendInterval    time.Duration `env:"SCHEDULER_SEND_INTERVAL,default=1s"`
	Timezone                 string        `env:"TIMEZONE,default=Asia/Colombo"`

	EventConsumerPrefetch int `env:"EVENT_CONSUMER_PREFETCH,default=8"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"OTEL_TRACE_SAMPLE_RATIO,default=1"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.UsageBackend = strings.ToLower(strings.TrimSpace(cfg.UsageBackend))
	switch cfg.UsageBackend {
	case UsageBackendPostgres, UsageBackendRedis:
	default:
		return nil, fmt.Errorf("failed to load config: unsupported usage counter backend %q", cfg.UsageBackend)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("failed to load config: invalid timezone %q: %w", cfg.Timezone, err)
	}

	return &cfg, nil
}

// GatewayConfigured reports whether gateway credentials are present.
func (c *Config) GatewayConfigured() bool {
	return strings.TrimSpace(c.SMSGatewayURL) != "" &&
		strings.TrimSpace(c.SMSUsername) != "" &&
		c.SMSPassword != ""
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultSettings returns the env-level dispatch settings used when no settings row is stored.
func (c *Config) DefaultSettings() domain.Settings {
	return domain.Settings{
		Enabled:                  c.SMSEnabled,
		SenderID:                 strings.TrimSpace(c.SMSSenderID),
		DailyLimit:               c.SMSDailyLimit,
		ComplianceThresholdDays:  c.ComplianceThresholdDays,
		MaintenanceThresholdDays: c.MaintenanceThresholdDays,
	}
}
