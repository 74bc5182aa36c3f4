package middleware

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
	tghelpers "github.com/Gabrielbm2/chatbot-telegram/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// sweepAt is the number of tracked users above which expired entries are dropped.
const sweepAt = 1024

// RateLimit drops an update that follows the previous one of the same user
// by less than Interval.
type RateLimit struct {
	Interval time.Duration
	// Exclude lists update kinds that are never limited.
	Exclude []string
	// OnLimited answers a dropped update.
	OnLimited tele.HandlerFunc

	mu   sync.Mutex
	seen map[int64]time.Time
	now  func() time.Time
}

// Middleware applies the limit in front of next.
func (r *RateLimit) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		u := c.Sender()
		kind := updateKind(c.Update())
		if u == nil || r.Interval <= 0 || slices.Contains(r.Exclude, kind) || r.allow(u.ID) {
			return next(c)
		}
		logger.Warn(tghelpers.Context(c), "tg", "update.limited",
			slog.String("kind", kind),
			slog.Duration("interval", r.Interval),
		)
		if r.OnLimited != nil {
			return r.OnLimited(c)
		}
		return nil
	}
}

func (r *RateLimit) allow(user int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	if r.seen == nil {
		r.seen = make(map[int64]time.Time)
	}
	if last, ok := r.seen[user]; ok && now.Sub(last) < r.Interval {
		return false
	}
	r.seen[user] = now
	if len(r.seen) > sweepAt {
		for id, last := range r.seen {
			if now.Sub(last) >= r.Interval {
				delete(r.seen, id)
			}
		}
	}
	return true
}

// updateKind names upd the way rate_limit.exclude_updates spells it.
func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	case upd.Query != nil:
		return coreconfig.UpdateInlineQuery
	}
	return "other"
}
