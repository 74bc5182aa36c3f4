// Package middleware holds the bot-wide update middlewares.
package middleware

import (
	"log/slog"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/callbacks"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Updates attaches the logging context to each update and logs its receipt
// at debug level, sampled by logging.debug_sample.
func Updates(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.Context(c)
		if logger.SampleDebug() {
			logger.Debug(ctx, "tg", "update.received", received(c)...)
		}
		return next(c)
	}
}

func received(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{slog.String("kind", updateKind(upd))}
	if ch := c.Chat(); ch != nil {
		attrs = append(attrs, slog.String("chat_type", string(ch.Type)))
	}
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.Clip(key, 64)),
			slog.String("payload", logger.Clip(payload, 128)),
		)
	case upd.Message != nil:
		attrs = append(attrs, slog.String("payload", logger.Clip(c.Text(), 128)))
	}
	return attrs
}
