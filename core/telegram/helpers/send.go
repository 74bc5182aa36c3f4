package helpers

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func chatKey(c tele.Context) int64 {
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// sendAsync counts the message on c and runs call on the dispatcher shard of
// the chat, or inline when no dispatcher is wired.
func sendAsync(c tele.Context, action string, kb bool, run func() error) error {
	countMessage(c, kb)

	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := Context(c)
	err := disp.Enqueue(ctx, sender.Call{Key: chatKey(c), Action: action, Run: run})
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "send.inline",
			slog.String("action", action),
			slog.Any("err", err),
		)
		return run()
	}
	return err
}

// Send sends plain text with an optional inline keyboard.
func Send(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	return sendAsync(c, "sendMessage", markup != nil, func() error {
		return c.Send(text, textOptions(markup))
	})
}

// textOptions builds fresh options per attempt: telebot rewrites inline
// button data in place while encoding.
func textOptions(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ReplyMarkup: cloneMarkup(markup), DisableWebPagePreview: true}
}

func cloneMarkup(m *tele.ReplyMarkup) *tele.ReplyMarkup {
	if m == nil {
		return nil
	}
	out := *m
	if m.InlineKeyboard != nil {
		out.InlineKeyboard = make([][]tele.InlineButton, len(m.InlineKeyboard))
		for i, row := range m.InlineKeyboard {
			out.InlineKeyboard[i] = append([]tele.InlineButton(nil), row...)
		}
	}
	return &out
}

// Edit replaces the message the callback came from. When Telegram refuses
// the edit for any reason other than unchanged content a new message is sent.
func Edit(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if c.Callback() == nil || c.Callback().Message == nil {
		return Send(c, text, markup)
	}
	return sendAsync(c, "editMessageText", markup != nil, func() error {
		err := c.Edit(text, textOptions(markup))
		switch {
		case err == nil, IsNotModified(err):
			return nil
		default:
			return c.Send(text, textOptions(markup))
		}
	})
}

// IsNotModified reports Telegram's "message is not modified" rejection.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

const (
	keyMessages = "messages"
	keyKB       = "kb"
)

// countMessage records an outgoing message on c for the handler summary.
func countMessage(c tele.Context, kb bool) {
	n, _ := c.Get(keyMessages).(int)
	c.Set(keyMessages, n+1)
	if kb {
		c.Set(keyKB, true)
	}
}

// Counters reads message count and keyboard presence flags from c.
func Counters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(keyMessages).(int)
	kb, _ := c.Get(keyKB).(bool)
	return msgs, kb
}
