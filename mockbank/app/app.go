// Package app assembles the Mock Bank bot from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Gabrielbm2/chatbot-telegram/core/bootstrap"
	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/core/ops"
	"github.com/Gabrielbm2/chatbot-telegram/core/redisx"
	coretelegram "github.com/Gabrielbm2/chatbot-telegram/core/telegram"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/lanes"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/sender"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/bot"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/flow"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/store"

	tele "gopkg.in/telebot.v4"
)

// App holds the wired components of one process.
type App struct {
	cfg     *Config
	started time.Time

	infra    *bootstrap.Result
	redis    *redis.Client
	users    store.Store
	sessions session.Store
	machine  *flow.Machine
	bot      *bot.Bot
	sender   *sender.Dispatcher
	ops      *ops.Server

	stopOps context.CancelFunc
	opsDone chan error
}

// Bootstrap initialises logging, storage and the conversation machine.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	opts := bootstrap.Options{Config: &cfg.Config}
	if cfg.Storage.Backend == StoragePostgres {
		opts.Database = &cfg.Database
		opts.Migrations = store.Migrations
		opts.MigrationsDir = store.MigrationsDir
	}
	infra, err := bootstrap.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, cfg, infra)
}

func assemble(ctx context.Context, cfg *Config, infra *bootstrap.Result) (*App, error) {
	a := &App{cfg: cfg, started: time.Now(), infra: infra}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	logger.Info(ctx, "app", "wired",
		slog.String("storage", cfg.Storage.Backend),
		slog.String("session", cfg.Session.Backend),
		slog.Duration("session_ttl", cfg.Session.TTLOrDefault()),
	)
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg
	ttl := cfg.Session.TTLOrDefault()

	if a.infra != nil && a.infra.DB != nil {
		a.users = store.NewPostgres(a.infra.DB)
	} else {
		a.users = store.NewMemory()
	}

	switch cfg.Session.Backend {
	case SessionMemory:
		a.sessions = session.NewMemoryStore(ttl)
	case SessionRedis:
		rdb, err := redisx.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.redis = rdb
		a.sessions = session.NewRedisStore(rdb, cfg.Session.RedisPrefix, ttl)
	default:
		a.sessions = store.NewSessionStore(a.users, ttl)
	}

	a.machine = flow.NewMachine(a.users, a.sessions)
	a.bot = bot.New(a.machine, a.started)
	a.sender = sender.NewDispatcher(sender.Options{})

	if cfg.Ops.Listen != "" {
		a.ops = ops.New(ops.Options{
			Listen:   cfg.Ops.Listen,
			Started:  a.started,
			Checks:   a.checks(),
			Counters: a.counters,
		})
	}
	return nil
}

func (a *App) checks() map[string]ops.Check {
	checks := map[string]ops.Check{}
	if a.infra != nil && a.infra.DB != nil {
		db := a.infra.DB
		checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	}
	if a.redis != nil {
		rdb := a.redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

func (a *App) counters() map[string]uint64 {
	st := a.sender.Stats()
	return map[string]uint64{
		"messages_sent":    st.Sent,
		"messages_failed":  st.Failed,
		"messages_retried": st.Retried,
	}
}

// Machine exposes the conversation machine.
func (a *App) Machine() *flow.Machine { return a.machine }

// TelegramRunOptions builds the registry, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.bot.Register(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Dispatcher:  a.sender,
		LaneOptions: lanes.Options{MaxPending: a.cfg.Lanes.MaxPending},
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, rateLimited),
		Routes:      reg.Routes(a.cfg.Telegram.AdminID),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func rateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Too fast, please wait."})
	}
	return tghelpers.Send(c, "Too many messages, please slow down.", nil)
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	if a.ops == nil {
		return nil
	}
	opsCtx, cancel := context.WithCancel(ctx)
	a.stopOps = cancel
	a.opsDone = make(chan error, 1)
	go func() { a.opsDone <- a.ops.Run(opsCtx) }()
	return nil
}

func (a *App) onStop(context.Context, coretelegram.Runtime) error {
	if a.stopOps != nil {
		a.stopOps()
		if err := <-a.opsDone; err != nil {
			logger.Warn(context.Background(), "ops", "shutdown", slog.Any("err", err))
		}
	}
	return a.Close()
}

// Close releases storage connections.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.sender != nil {
		a.sender.Close()
	}
	if a.redis != nil {
		keep(a.redis.Close())
		a.redis = nil
	}
	switch {
	case a.users != nil:
		// The Postgres store owns the bootstrap DB handle.
		keep(a.users.Close())
	case a.infra != nil:
		keep(a.infra.Close())
	}
	a.users = nil
	a.infra = nil
	return firstErr
}
