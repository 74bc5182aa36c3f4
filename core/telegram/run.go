// Package telegram wires a telebot.Bot: registry routes, the shared
// middleware chain, per-user lanes and the outbound sender.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/lanes"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/netutil"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware is a named bot-wide middleware.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config
	// Registry supplies the command menu published on start.
	Registry *Registry
	// Dispatcher carries replies; a default one is started when nil.
	Dispatcher  *sender.Dispatcher
	LaneOptions lanes.Options

	Middlewares []Middleware
	Routes      []Route

	// Settings replaces the bot settings derived from Config (tests).
	Settings *tele.Settings

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to see.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *sender.Dispatcher
	Lanes      *lanes.Pool
}

const laneDrainTimeout = 10 * time.Second

// RunTelegram serves updates until ctx is done. Telebot itself runs
// synchronously; the lanes middleware orders updates per user and runs
// different users in parallel. On the way out lanes drain, then the
// sender, then OnStop runs.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config")
	}

	pool := lanes.New(withLaneErrors(opts.LaneOptions))
	bot, err := newBot(opts.Config, opts.Settings)
	if err != nil {
		return err
	}
	disp := opts.Dispatcher
	if disp == nil {
		disp = sender.NewDispatcher(sender.Options{})
	}
	tghelpers.SetDispatcher(disp)
	rt := Runtime{Bot: bot, Dispatcher: disp, Lanes: pool}

	logMode(ctx, bot.Poller)
	if _, polling := bot.Poller.(*tele.LongPoller); polling {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, "tg", "webhook.delete", slog.String("err", netutil.Redact(err.Error())))
		}
	}
	Wire(bot, pool, opts.Middlewares, opts.Routes)
	if opts.Registry != nil {
		publishMenu(ctx, bot, opts.Registry.Menu())
	}

	shutdown := func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), laneDrainTimeout)
		defer cancel()
		if err := pool.Close(drainCtx); err != nil {
			logger.Warn(ctx, "tg", "lanes.drain",
				slog.Int("active", pool.Active()),
				slog.Any("err", err),
			)
		}
		disp.Close()
		tghelpers.SetDispatcher(nil)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			shutdown()
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}

	shutdown()
	if opts.OnStop != nil {
		return opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	return nil
}

// Wire installs middlewares and routes on bot. The lanes middleware goes
// last so the shared chain still runs in arrival order.
func Wire(bot *tele.Bot, pool *lanes.Pool, mws []Middleware, routes []Route) {
	names := make([]string, 0, len(mws))
	for _, mw := range mws {
		if mw.Use != nil {
			bot.Use(mw.Use)
			names = append(names, mw.Name)
		}
	}
	if pool != nil {
		bot.Use(pool.Middleware)
		names = append(names, "lanes")
	}
	for _, r := range routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	logger.Debug(context.Background(), "tg.wire", "wire",
		slog.String("middlewares", strings.Join(names, ",")),
		slog.Int("routes", len(routes)),
	)
}

func publishMenu(ctx context.Context, bot *tele.Bot, menu []tele.Command) {
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(ctx, "tg.wire", "menu.publish", slog.String("err", netutil.Redact(err.Error())))
		return
	}
	logger.Info(ctx, "tg.wire", "menu.publish", slog.Int("commands", len(menu)))
}

func newBot(cfg *coreconfig.Config, override *tele.Settings) (*tele.Bot, error) {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: newPoller(cfg),
		Client: newHTTPClient(),
	}
	if override != nil {
		settings = *override
	}
	settings.Synchronous = true
	if settings.OnError == nil {
		settings.OnError = logHandlerError
	}
	bot, err := tele.NewBot(settings)
	if err != nil {
		return nil, errors.New("telegram: bot init: " + netutil.Redact(err.Error()))
	}
	return bot, nil
}

func withLaneErrors(opts lanes.Options) lanes.Options {
	if opts.OnError == nil {
		opts.OnError = logHandlerError
	}
	return opts
}

// logHandlerError sees errors that escaped a handler. The handler summary
// already carries them, so this stays at debug.
func logHandlerError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.Context(c)
	}
	logger.Debug(ctx, "tg", "handler.error", slog.String("err", logger.Clip(netutil.Redact(err.Error()), 256)))
}

func logMode(ctx context.Context, poller tele.Poller) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
		)
	}
}
