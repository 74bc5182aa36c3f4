package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
)

func render(t *testing.T, format logFormat, fn func(log *slog.Logger)) string {
	t.Helper()
	buf := &bytes.Buffer{}
	s := newSink([]io.Writer{buf}, 8)
	fn(slog.New(newHandler(slog.LevelDebug, s, format, nil)).With("component", "flow"))
	require.NoError(t, s.close())
	return strings.TrimSpace(buf.String())
}

func TestHandlerKVOrder(t *testing.T) {
	ctx := WithMeta(context.Background(), Meta{RID: "rid-123", UpdateID: 42, UserID: 7, ChatID: 9})
	got := render(t, formatKV, func(log *slog.Logger) {
		log.LogAttrs(ctx, slog.LevelInfo, "flow.commit",
			slog.String("amount", "100"),
			slog.String("status", "OK"),
			slog.String("flow", "deposit"),
		)
	})

	tokens := strings.Split(got, " ")
	want := []string{"ts=", "level=INFO", "component=flow", "event=flow.commit", "status=ok", "rid=rid-123",
		"update_id=42", "user_id=7", "chat_id=9", "flow=deposit", "amount=100"}
	require.Len(t, tokens, len(want), got)
	for i, prefix := range want {
		assert.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestHandlerJSON(t *testing.T) {
	ctx := WithHandler(WithMeta(context.Background(), Meta{RID: "12:34:56"}), "callback.confirm_yes")
	got := render(t, formatJSON, func(log *slog.Logger) {
		log.LogAttrs(ctx, slog.LevelError, "flow.commit",
			slog.String("err_code", "PERSISTENCE"),
			slog.Any("err", errors.New("boom")),
			slog.Duration("elapsed", 1500*time.Microsecond),
		)
	})

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &fields), got)
	assert.Equal(t, "ERROR", fields["level"])
	assert.Equal(t, "flow", fields["component"])
	assert.Equal(t, "boom", fields["err"])
	assert.Equal(t, "PERSISTENCE", fields["err_code"])
	assert.Equal(t, "callback.confirm_yes", fields["handler"])
	assert.Equal(t, "c.y.1k", fields["rid"])
	assert.Equal(t, "12:34:56", fields["rid_full"])
	assert.EqualValues(t, 2, fields["elapsed_ms"])
	assert.Contains(t, fields, "ts_unix_nano")

	assert.Less(t, strings.Index(got, `"level"`), strings.Index(got, `"event"`))
	assert.Less(t, strings.Index(got, `"event"`), strings.Index(got, `"err"`))
}

func TestHandlerKVQuotesAndOmitsFullRID(t *testing.T) {
	got := render(t, formatKV, func(log *slog.Logger) {
		log.LogAttrs(WithMeta(context.Background(), Meta{RID: "123:456:789"}), slog.LevelInfo, "update.received",
			slog.String("payload", "two words"),
			slog.String("empty", ""),
		)
	})
	assert.Contains(t, got, "rid="+compactRID("123:456:789"))
	assert.Contains(t, got, `payload="two words"`)
	assert.NotContains(t, got, "rid_full=")
	assert.NotContains(t, got, "empty=")
}

func TestHandlerExplicitAttrsWinOverContext(t *testing.T) {
	ctx := WithMeta(context.Background(), Meta{UpdateID: 1, UserID: 7, ChatID: 7})
	got := render(t, formatKV, func(log *slog.Logger) {
		log.LogAttrs(ctx, slog.LevelInfo, "flow.reject", slog.Int64("user_id", 99))
	})
	assert.Contains(t, got, "user_id=99")
	assert.NotContains(t, got, "user_id=7")
	assert.Contains(t, got, "chat_id=7")
}

func TestHandlerGroupsPrefixKeys(t *testing.T) {
	got := render(t, formatKV, func(log *slog.Logger) {
		log.WithGroup("db").With("host", "pg").Info("connect", slog.Group("pool", slog.Int("open", 3)))
	})
	assert.Contains(t, got, "db.host=pg")
	assert.Contains(t, got, "db.pool.open=3")
	assert.Contains(t, got, "event=connect")
}

func TestHandlerDropsBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	s := newSink([]io.Writer{buf}, 8)
	log := slog.New(newHandler(slog.LevelWarn, s, formatKV, nil))
	log.Info("quiet")
	log.Warn("loud")
	require.NoError(t, s.close())
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "event=loud")
}

func TestSinkSyncAndClose(t *testing.T) {
	buf := &bytes.Buffer{}
	s := newSink([]io.Writer{buf}, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.write([]byte("x\n")))
	}
	require.NoError(t, s.sync())
	assert.Equal(t, 5, strings.Count(buf.String(), "x"))

	require.NoError(t, s.close())
	require.NoError(t, s.close())
	assert.ErrorIs(t, s.write([]byte("late\n")), errSinkClosed)
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSinkReportsFirstWriteError(t *testing.T) {
	s := newSink([]io.Writer{brokenWriter{}}, 1)
	_ = s.write([]byte("x\n"))
	assert.EqualError(t, s.close(), "disk full")
}

func TestParseSample(t *testing.T) {
	cases := []struct {
		spec        string
		keep, every uint64
		ok          bool
	}{
		{"", 0, 0, false},
		{"1/50", 1, 50, true},
		{" 3 / 10 ", 3, 10, true},
		{"20", 1, 20, true},
		{"0", 1, 0, true},
		{"0/5", 0, 0, false},
		{"x", 0, 0, false},
	}
	for _, tc := range cases {
		keep, every, ok := parseSample(tc.spec)
		assert.Equal(t, tc.ok, ok, tc.spec)
		assert.Equal(t, tc.keep, keep, tc.spec)
		assert.Equal(t, tc.every, every, tc.spec)
	}
}

func TestSamplerKeepsRatio(t *testing.T) {
	s := &sampler{keep: 2, every: 5}
	kept := 0
	for i := 0; i < 50; i++ {
		if s.allow() {
			kept++
		}
	}
	assert.Equal(t, 20, kept)
	assert.True(t, (&sampler{}).allow())
}

func TestParseOptions(t *testing.T) {
	o := parseOptions(coreconfig.LoggingConfig{})
	assert.Equal(t, slog.LevelInfo, o.level)
	assert.Equal(t, formatJSON, o.format)
	assert.Equal(t, "prod", o.profile)
	assert.Equal(t, keyOrder, o.keys)

	o = parseOptions(coreconfig.LoggingConfig{Level: "WARNING", Profile: "Dev", Keys: "ts, event,,default", DebugSample: "0"})
	assert.Equal(t, slog.LevelWarn, o.level)
	assert.Equal(t, formatKV, o.format)
	assert.Equal(t, []string{"ts", "event"}, o.keys)
	assert.Zero(t, o.every)

	o = parseOptions(coreconfig.LoggingConfig{Format: "json", Profile: "debug"})
	assert.Equal(t, formatJSON, o.format)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "ab\tc", Clip("a\x00b\tc\u200b", 10))
	assert.Equal(t, "héll", Clip("héllo", 4))
	assert.Empty(t, Clip("abc", 0))
}

func TestCompactRID(t *testing.T) {
	assert.Equal(t, "z.a.1", compactRID(NewRID(35, 10, 1)))
	assert.Equal(t, "not-a-rid", compactRID("not-a-rid"))
	assert.Equal(t, "1:x:2", compactRID("1:x:2"))
}
