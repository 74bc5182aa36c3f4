package telegram

import (
	"time"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared chain: panic recovery, update
// context, then the per-user rate limit when rate_limit.interval_ms is set.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.Recover},
		{Name: "updates", Use: middleware.Updates},
	}
	if cfg == nil || cfg.RateLimit.IntervalMS <= 0 {
		return mws
	}
	rl := &middleware.RateLimit{
		Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
		Exclude:   cfg.RateLimit.ExcludeUpdates,
		OnLimited: onLimited,
	}
	return append(mws, Middleware{Name: "rate_limit", Use: rl.Middleware})
}
