// Package helpers carries per-update logging state and the reply helpers
// handlers send through.
package helpers

import (
	"context"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxKey = "log_ctx"

// Context returns the logging context of the update in c. The first call
// builds it from the update, sender and chat ids.
func Context(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok {
		return ctx
	}
	m := logger.Meta{UpdateID: c.Update().ID}
	if u := c.Sender(); u != nil {
		m.UserID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		m.ChatID = ch.ID
	}
	m.RID = logger.NewRID(m.UpdateID, m.ChatID, m.UserID)

	ctx := logger.WithMeta(context.Background(), m)
	c.Set(ctxKey, ctx)
	return ctx
}

// WithHandler names the handler serving c on every later line of the update.
func WithHandler(c tele.Context, name string) context.Context {
	ctx := logger.WithHandler(Context(c), name)
	c.Set(ctxKey, ctx)
	return ctx
}
