// Package cmd holds the process entry sequence shared by bot binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	coretelegram "github.com/Gabrielbm2/chatbot-telegram/core/telegram"
)

// ConfigCarrier is a bot configuration that embeds the core section.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is a bootstrapped bot ready to describe how it runs.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires the steps of Run. LoadConfig and Bootstrap are required;
// the rest default to the production implementations.
type Options struct {
	// ConfigEnvVar names the variable holding the config path; CONFIG_PATH when empty.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Signals overrides the signal-bound root context (tests).
	Signals func() (context.Context, context.CancelFunc)
}

func (o *Options) defaults() {
	if o.ConfigEnvVar == "" {
		o.ConfigEnvVar = "CONFIG_PATH"
	}
	if o.ShutdownLogger == nil {
		o.ShutdownLogger = logger.Shutdown
	}
	if o.RunTelegram == nil {
		o.RunTelegram = coretelegram.RunTelegram
	}
	if o.Signals == nil {
		o.Signals = func() (context.Context, context.CancelFunc) {
			return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		}
	}
}

// Run loads configuration, bootstraps the app and serves Telegram until
// SIGINT or SIGTERM.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	opts.defaults()

	path := os.Getenv(opts.ConfigEnvVar)
	if path == "" {
		path = opts.DefaultConfigPath
	}
	if path == "" {
		return fmt.Errorf("cmd: no config path in %s or DefaultConfigPath", opts.ConfigEnvVar)
	}
	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errors.New("cmd: config has no core section")
	}

	ctx, cancel := opts.Signals()
	defer cancel()

	started := time.Now()
	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	defer func() {
		if err := opts.ShutdownLogger(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		if c, ok := app.(io.Closer); ok {
			_ = c.Close()
		}
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	return opts.RunTelegram(ctx, withLifecycleLogs(runOpts, started))
}

// withLifecycleLogs logs readiness after the app's OnStart and the shutdown
// before its OnStop.
func withLifecycleLogs(ro coretelegram.RunOptions, started time.Time) coretelegram.RunOptions {
	onStart, onStop := ro.OnStart, ro.OnStop
	ro.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready", slog.Duration("startup", time.Since(started)))
		return nil
	}
	ro.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown", slog.Duration("uptime", time.Since(started)))
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
	return ro
}
