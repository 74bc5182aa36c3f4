package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig selects level, line format and sinks of the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// Profile "dev" or "debug" switches the default format to kv.
	Profile string `yaml:"profile"`
	// Keys overrides the leading field order, comma separated.
	Keys string `yaml:"keys"`
	// DebugSample is "keep/every" or "every" for update.received debug lines; "0" logs all.
	DebugSample string `yaml:"debug_sample"`
	// File is appended to in addition to stdout when set.
	File string `yaml:"file" envconfig:"LOG_FILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

var updateKinds = []string{UpdateCallback, UpdateMessage, UpdateInlineQuery}

// RateLimitConfig spaces the updates of one user by IntervalMS; 0 disables
// the limit. ExcludeUpdates names update kinds that bypass it.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Decode fills out from the YAML file at path and then from the environment.
// A .env file next to the working directory is loaded first when present;
// variables already set in the process win over it.
func Decode(path string, out any) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// loadDotEnv loads dotenv files into the process environment. Missing files
// are ignored.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// runModes maps accepted spellings of telegram.run_mode to the canonical one.
var runModes = map[string]string{
	"":              RunModeLongpoll,
	"polling":       RunModeLongpoll,
	RunModeLongpoll: RunModeLongpoll,
	RunModeWebhook:  RunModeWebhook,
}

// Normalize canonicalises run mode and update kinds and reports every
// invalid field at once.
func (c *Config) Normalize() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Telegram.Token) == "" {
		bad("telegram.token is required")
	}

	mode, ok := runModes[strings.ToLower(strings.TrimSpace(c.Telegram.RunMode))]
	switch {
	case !ok:
		bad("telegram.run_mode %q is not one of webhook, longpoll", c.Telegram.RunMode)
	case mode == RunModeWebhook:
		if strings.TrimSpace(c.Webhook.URL) == "" || strings.TrimSpace(c.Webhook.Listen) == "" || c.Webhook.Port <= 0 {
			bad("webhook mode needs webhook.url, webhook.listen and a positive webhook.port")
		}
	case c.Telegram.LongPollTimeoutSeconds < 0:
		bad("telegram.longpoll_timeout_seconds must not be negative")
	}
	if ok {
		c.Telegram.RunMode = mode
	}

	if c.RateLimit.IntervalMS < 0 {
		bad("rate_limit.interval_ms must not be negative")
	}
	kinds := c.RateLimit.ExcludeUpdates[:0]
	for _, k := range c.RateLimit.ExcludeUpdates {
		k = strings.ToLower(strings.TrimSpace(k))
		switch {
		case k == "":
		case slices.Contains(updateKinds, k):
			kinds = append(kinds, k)
		default:
			bad("rate_limit.exclude_updates: unknown update kind %q", k)
		}
	}
	c.RateLimit.ExcludeUpdates = kinds

	return errors.Join(errs...)
}
