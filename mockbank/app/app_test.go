package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gabrielbm2/chatbot-telegram/core/bootstrap"
	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
	coretelegram "github.com/Gabrielbm2/chatbot-telegram/core/telegram"
	"github.com/Gabrielbm2/chatbot-telegram/core/telegram/teletest"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/flow"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/session"
	"github.com/Gabrielbm2/chatbot-telegram/mockbank/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "telegram:\n  token: t\n"))
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, SessionRecord, cfg.Session.Backend)
	assert.Equal(t, DefaultSessionTTL, cfg.Session.TTLOrDefault())
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadConfigSessionTTL(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
telegram:
  token: t
session:
  backend: Memory
  ttl: 0s
`))
	require.NoError(t, err)
	assert.Equal(t, SessionMemory, cfg.Session.Backend)
	assert.Equal(t, time.Duration(0), cfg.Session.TTLOrDefault())

	t.Setenv("SESSION_TTL", "90m")
	cfg, err = LoadConfig(writeConfig(t, "telegram:\n  token: t\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.Session.TTLOrDefault())
}

func TestNormalizeRejects(t *testing.T) {
	negative := -time.Second
	cases := map[string]func(*Config){
		"postgres without host": func(c *Config) { c.Storage.Backend = StoragePostgres },
		"unknown storage":       func(c *Config) { c.Storage.Backend = "mongo" },
		"redis without addr":    func(c *Config) { c.Session.Backend = SessionRedis },
		"unknown session":       func(c *Config) { c.Session.Backend = "cookie" },
		"negative ttl":          func(c *Config) { c.Session.TTL = &negative },
		"negative lanes":        func(c *Config) { c.Lanes.MaxPending = -1 },
		"missing token":         func(c *Config) { c.Telegram.Token = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Telegram.Token = "t"
			mutate(cfg)
			assert.Error(t, cfg.Normalize())
		})
	}

	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Storage.Backend = StoragePostgres
	cfg.Database.Host = "db"
	cfg.Database.Name = "bank"
	assert.NoError(t, cfg.Normalize())
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	cfg.Telegram.Token = "123:test"
	require.NoError(t, cfg.Normalize())
	return cfg
}

func TestAssembleMemoryBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Backend = SessionMemory
	a, err := assemble(context.Background(), cfg, &bootstrap.Result{})
	require.NoError(t, err)

	assert.IsType(t, &store.Memory{}, a.users)
	assert.NotNil(t, a.Machine())
	assert.Nil(t, a.ops)
	assert.Empty(t, a.checks())
	assert.NoError(t, a.Close())
}

func TestTelegramRunOptionsServeUpdates(t *testing.T) {
	cfg := testConfig(t)
	a, err := assemble(context.Background(), cfg, &bootstrap.Result{})
	require.NoError(t, err)
	_, ok := a.sessions.(*store.SessionStore)
	require.True(t, ok)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, &cfg.Config, opts.Config)
	assert.NotEmpty(t, opts.Middlewares)
	assert.Same(t, a.sender, opts.Dispatcher)
	assert.NotEmpty(t, opts.Registry.Menu())

	srv := teletest.NewServer(t)
	tb := srv.NewBot(t)
	coretelegram.Wire(tb, nil, opts.Middlewares, opts.Routes)

	const user = 77
	tb.ProcessUpdate(teletest.TextUpdate(1, user, "/start"))
	key, payload := flow.Cmd(flow.ActionDeposit).Encode()
	tb.ProcessUpdate(teletest.CallbackUpdate(2, user, key, payload))
	srv.Reset()
	tb.ProcessUpdate(teletest.TextUpdate(3, user, "250"))

	sent := srv.CallsTo("sendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "Select a payment method:", sent[0].Text())

	s, err := a.sessions.Load(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, session.StageSelectMethod, s.Stage())
	assert.Equal(t, int64(250), s.Amount())

	u, err := a.users.GetUser(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, u.Session)

	require.NoError(t, opts.OnStop(context.Background(), coretelegram.Runtime{}))
}

func TestOpsLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ops.Listen = "127.0.0.1:0"
	a, err := assemble(context.Background(), cfg, &bootstrap.Result{})
	require.NoError(t, err)
	require.NotNil(t, a.ops)

	rec := httptest.NewRecorder()
	a.ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	rec = httptest.NewRecorder()
	a.ops.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uptime", nil))
	var uptime map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uptime))
	assert.Equal(t, map[string]any{"messages_sent": 0.0, "messages_failed": 0.0, "messages_retried": 0.0}, uptime["counters"])

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	require.NoError(t, opts.OnStart(context.Background(), coretelegram.Runtime{}))
	done := make(chan error, 1)
	go func() { done <- opts.OnStop(context.Background(), coretelegram.Runtime{}) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ops server did not stop")
	}
}
