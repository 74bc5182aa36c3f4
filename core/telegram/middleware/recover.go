package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Recover turns a panic further down the chain into an error for the bot's
// OnError hook.
func Recover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.Context(c), "tg", "update.panic",
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}()
		return next(c)
	}
}
