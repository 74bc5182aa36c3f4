package logger

import (
	"context"
	"strconv"
	"strings"
	"unicode"
)

// Meta identifies the update a log line belongs to. The handler copies the
// non-zero fields into every line logged with the context.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
}

type metaKey struct{}

// WithMeta returns ctx carrying m.
func WithMeta(ctx context.Context, m Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metaKey{}, m)
}

// MetaFrom returns the Meta of ctx, zero when absent.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

// WithHandler names the handler serving the update in ctx.
func WithHandler(ctx context.Context, name string) context.Context {
	m := MetaFrom(ctx)
	m.Handler = name
	return WithMeta(ctx, m)
}

func (m Meta) fill(l line) {
	l.setDefault("rid", m.RID)
	if m.UpdateID != 0 {
		l.setDefault("update_id", int64(m.UpdateID))
	}
	if m.UserID != 0 {
		l.setDefault("user_id", m.UserID)
	}
	if m.ChatID != 0 {
		l.setDefault("chat_id", m.ChatID)
	}
	l.setDefault("handler", m.Handler)
}

// NewRID builds the correlation id "update:chat:user".
func NewRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// compactRID rewrites a NewRID value as dot separated base36 numbers. Other
// input comes back unchanged.
func compactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	var b strings.Builder
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return rid
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatInt(n, 36))
	}
	return b.String()
}

// Clip drops control and format runes other than tab and newline from
// user supplied text and cuts it to max runes.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
