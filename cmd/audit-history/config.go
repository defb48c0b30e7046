package main

import (
	"fmt"

	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/config"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/history"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/messaging"
	"github.com/godamri/helix-audit/pkg/telemetry"
	"github.com/godamri/helix-audit/server"
	"github.com/godamri/helix-audit/server/middleware"
)

const serviceName = "audit-history"

// Config is the history service configuration. Sections keep the env names
// of their packages, e.g. LOG_LEVEL, KAFKA_BROKERS, DB_DSN.
type Config struct {
	Log       log.Config               `yaml:"log"`
	Telemetry telemetry.Config         `yaml:"telemetry"`
	Kafka     messaging.Config         `yaml:"kafka"`
	Consumer  messaging.ConsumerConfig `yaml:"consumer"`
	Topics    messaging.TopicSpec      `yaml:"topics"`
	History   history.Config           `yaml:"history"`
	HTTP      server.Config            `yaml:"http"`

	// Checked in Validate: only needed by the backends that are enabled.
	Database database.Config `validate:"-" yaml:"database"`
	Redis    cache.Config    `validate:"-" yaml:"redis"`

	AuthEnabled bool                           `envconfig:"AUTH_ENABLED" default:"false" yaml:"auth_enabled"`
	Auth        middleware.TrustedHeaderConfig `yaml:"auth"`
	RateLimit   middleware.RateLimitConfig     `yaml:"rate_limit"`
}

// usesRedis reports whether any enabled component talks to Redis.
func (c *Config) usesRedis() bool {
	return c.History.CacheEnabled || c.RateLimit.Enabled
}

// Validate checks the sections the loader skipped.
func (c *Config) Validate() error {
	if c.History.Store == "postgres" {
		if err := config.Validate(c.Database); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.usesRedis() {
		if err := config.Validate(c.Redis); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
