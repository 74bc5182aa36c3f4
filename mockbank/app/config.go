package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	coredatabase "github.com/Gabrielbm2/chatbot-telegram/core/database"
	"github.com/Gabrielbm2/chatbot-telegram/core/redisx"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	SessionMemory = "memory"
	SessionRecord = "record"
	SessionRedis  = "redis"

	// DefaultSessionTTL drops abandoned flows after a day.
	DefaultSessionTTL = 24 * time.Hour
)

// StorageConfig selects the user and transaction store.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
}

// SessionConfig selects where conversation state lives.
type SessionConfig struct {
	Backend string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	// TTL expires idle flows; nil -> DefaultSessionTTL, 0 -> never.
	TTL *time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	// RedisPrefix namespaces session keys.
	RedisPrefix string `yaml:"redis_prefix" envconfig:"SESSION_REDIS_PREFIX"`
}

// TTLOrDefault resolves the configured TTL.
func (s SessionConfig) TTLOrDefault() time.Duration {
	if s.TTL == nil {
		return DefaultSessionTTL
	}
	return *s.TTL
}

// OpsConfig configures the operational HTTP listener; empty Listen disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// LanesConfig bounds the per-user update queues.
type LanesConfig struct {
	MaxPending int `yaml:"max_pending" envconfig:"LANES_MAX_PENDING"`
}

// Config is the full Mock Bank configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Redis    redisx.Config       `yaml:"redis"`
	Storage  StorageConfig       `yaml:"storage"`
	Session  SessionConfig       `yaml:"session"`
	Ops      OpsConfig           `yaml:"ops"`
	Lanes    LanesConfig         `yaml:"lanes"`
}

// CoreConfig exposes the shared section to the core runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates backend combinations.
func (c *Config) Normalize() error {
	if err := c.Config.Normalize(); err != nil {
		return err
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageMemory
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.Database.Host) == "" || strings.TrimSpace(c.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for storage.backend %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: memory, postgres", c.Storage.Backend)
	}

	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Session.Backend == "" {
		c.Session.Backend = SessionRecord
	}
	switch c.Session.Backend {
	case SessionMemory, SessionRecord:
	case SessionRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("redis.addr is required for session.backend %q", SessionRedis)
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, record, redis", c.Session.Backend)
	}
	if c.Session.TTL != nil && *c.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must be >= 0")
	}
	if c.Lanes.MaxPending < 0 {
		return fmt.Errorf("lanes.max_pending must be >= 0")
	}
	return nil
}
