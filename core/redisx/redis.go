// Package redisx connects to Redis for components that keep short-lived state there.
package redisx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	// DialTimeoutMS bounds connection attempts; 0 -> 5s.
	DialTimeoutMS int `yaml:"dial_timeout_ms" envconfig:"REDIS_DIAL_TIMEOUT_MS"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

func (c Config) options() *redis.Options {
	dial := time.Duration(c.DialTimeoutMS) * time.Millisecond
	if dial <= 0 {
		dial = 5 * time.Second
	}
	return &redis.Options{
		Addr:        strings.TrimSpace(c.Addr),
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: dial,
		MaxRetries:  1,
	}
}

// Connect opens a client and pings it once.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("redis: addr is required")
	}
	start := time.Now()
	rdb := redis.NewClient(cfg.options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		logger.Error(ctx, "redis", "connect",
			slog.String("status", "fail"),
			slog.String("host", cfg.Addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "redis", "connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", time.Since(start)),
	)
	return rdb, nil
}
