package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
)

// line holds the fields of one record; a later write of a key wins.
type line map[string]any

func (l line) setDefault(key string, v any) {
	if s, ok := v.(string); ok && s == "" {
		return
	}
	if _, ok := l[key]; !ok {
		l[key] = v
	}
}

func (l line) str(key string) string {
	s, _ := l[key].(string)
	return s
}

type field struct {
	key string
	val any
}

// handler is the slog.Handler of the bot. Group names prefix keys with dots.
type handler struct {
	level  slog.Leveler
	out    *sink
	format logFormat
	keys   []string

	preset []field
	prefix string
}

func newHandler(level slog.Leveler, out *sink, format logFormat, keys []string) *handler {
	if level == nil {
		level = slog.LevelInfo
	}
	if keys == nil {
		keys = keyOrder
	}
	return &handler{level: level, out: out, format: format, keys: keys}
}

func (h *handler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time.UTC()
	l := line{
		"ts":    ts.Truncate(time.Millisecond).Format("2006-01-02T15:04:05.000Z07:00"),
		"level": r.Level.String(),
	}
	if h.format == formatJSON {
		l["ts_unix_nano"] = ts.UnixNano()
	}
	for _, f := range h.preset {
		l[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		walkAttr(h.prefix, a, func(k string, v any) { l[k] = v })
		return true
	})
	MetaFrom(ctx).fill(l)

	if rid := l.str("rid"); rid != "" {
		if short := compactRID(rid); short != rid {
			if h.format == formatJSON {
				l.setDefault("rid_full", rid)
			}
			l["rid"] = short
		}
	}
	if l.str("event") == "" {
		event := r.Message
		if event == "" {
			event = "unknown"
		}
		l["event"] = event
	}
	if l.str("component") == "" {
		l["component"] = "app"
	}
	if s := l.str("status"); s != "" {
		l["status"] = strings.ToLower(s)
	}
	for k, v := range l {
		if v == nil || v == "" {
			delete(l, k)
		}
	}

	buf, err := h.format.encode(l, h.keys)
	if err != nil {
		return err
	}
	return h.out.write(append(buf, '\n'))
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.preset = slices.Clone(h.preset)
	for _, a := range attrs {
		walkAttr(h.prefix, a, func(k string, v any) { c.preset = append(c.preset, field{k, v}) })
	}
	return &c
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// walkAttr flattens groups into dotted keys and converts values to what the
// encoders print.
func walkAttr(prefix string, a slog.Attr, fn func(string, any)) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, child := range v.Group() {
			walkAttr(p, child, fn)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		fn(key, strings.TrimSpace(v.String()))
	case slog.KindInt64:
		fn(key, v.Int64())
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			fn(key, int64(u))
		} else {
			fn(key, u)
		}
	case slog.KindFloat64:
		fn(key, v.Float64())
	case slog.KindBool:
		fn(key, v.Bool())
	case slog.KindDuration:
		fn(msKey(key), roundMS(v.Duration()).Milliseconds())
	case slog.KindTime:
		fn(key, v.Time().UTC().Format(time.RFC3339Nano))
	default:
		switch x := v.Any().(type) {
		case nil:
		case error:
			fn(key, x.Error())
		case time.Duration:
			fn(msKey(key), roundMS(x).Milliseconds())
		case fmt.Stringer:
			fn(key, x.String())
		default:
			fn(key, fmt.Sprint(x))
		}
	}
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// roundMS rounds d to whole milliseconds; negative durations become zero.
func roundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}
