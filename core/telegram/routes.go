package telegram

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/callbacks"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// mediaEndpoints are message kinds without text that still get an answer.
var mediaEndpoints = []string{
	tele.OnDocument,
	tele.OnPhoto,
	tele.OnSticker,
	tele.OnVoice,
	tele.OnVideo,
	tele.OnLocation,
	tele.OnContact,
}

// Routes binds the registry to bot endpoints. Commands are resolved from
// OnText because telebot hands unbound slash text there. A non-zero adminID
// restricts AdminOnly commands to that user.
func (r *Registry) Routes(adminID int64) []Route {
	routes := []Route{
		{Endpoint: tele.OnText, Handler: func(c tele.Context) error { return r.onText(c, adminID) }},
		{Endpoint: tele.OnCallback, Handler: r.onCallback},
	}
	media := func(c tele.Context) error { return serve(c, "media", r.Media) }
	for _, ep := range mediaEndpoints {
		routes = append(routes, Route{Endpoint: ep, Handler: media})
	}
	return routes
}

func (r *Registry) onText(c tele.Context, adminID int64) error {
	cmd, ok := r.lookup(c.Text())
	if !ok {
		return serve(c, "text", r.Text)
	}
	name := "command." + strings.TrimPrefix(cmd.Name, "/")
	if cmd.AdminOnly && adminID != 0 && (c.Sender() == nil || c.Sender().ID != adminID) {
		return serve(c, name, nil, slog.String("cause", "not_admin"))
	}
	return serve(c, name, cmd.Handler)
}

func (r *Registry) onCallback(c tele.Context) error {
	if c.Callback() == nil {
		return nil
	}
	_ = c.Respond()
	key, _ := callbacks.ParseCallbackData(c.Callback())
	if h, ok := r.callbacks[key]; ok {
		return serve(c, "callback."+key, h)
	}
	return serve(c, "callback.unknown", r.UnknownCallback, slog.String("cb_key", logger.Clip(key, 64)))
}

// serve runs h as the handler called name and logs one summary line for
// the update. A nil h is logged as skipped.
func serve(c tele.Context, name string, h tele.HandlerFunc, attrs ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)

	status := "skip"
	var err error
	if h != nil {
		status = "ok"
		if err = h(c); err != nil {
			status = "fail"
		}
	}

	msgs, kb := tghelpers.Counters(c)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.Clip(netutil.Redact(err.Error()), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	logger.Info(ctx, "tg", "handler.handled", attrs...)
	return err
}

// errorCode prefers a Code() the error carries, else its network class.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) && coded.Code() != "" {
		return coded.Code()
	}
	return netutil.Kind(err)
}
