// Package logger is the structured slog setup of the bot. One handler writes
// kv or JSON lines through an async sink; every line names its component and
// event, and update metadata travels in the context.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/Gabrielbm2/chatbot-telegram/core/buildinfo"
	coreconfig "github.com/Gabrielbm2/chatbot-telegram/core/config"
)

var (
	mu     sync.Mutex
	inited bool
	out    *sink
	files  []io.Closer

	level slog.LevelVar

	// base is slog.Default() until Init.
	base = slog.Default()
)

// Init installs the structured handler as the slog default. Calls after the
// first are no-ops.
func Init(cfg *coreconfig.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		return nil
	}

	var lc coreconfig.LoggingConfig
	if cfg != nil {
		lc = cfg.Logging
	}
	o := parseOptions(lc)

	writers := []io.Writer{os.Stdout}
	if o.file != "" {
		f, err := openFile(o.file)
		if err != nil {
			return err
		}
		writers = append(writers, f)
		files = append(files, f)
	}

	level.Set(o.level)
	setDebugSample(o.keep, o.every)
	out = newSink(writers, 512)
	base = slog.New(newHandler(&level, out, o.format, o.keys))
	slog.SetDefault(base)
	inited = true

	base.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("component", "app"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", o.profile),
	)
	return nil
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Shutdown drains the sink and closes log files. It is safe to call twice.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error
	if out != nil {
		errs = append(errs, out.close())
		out = nil
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	files = nil
	return errors.Join(errs...)
}

type options struct {
	level       slog.Level
	format      logFormat
	keys        []string
	keep, every uint64
	profile     string
	file        string
}

func parseOptions(lc coreconfig.LoggingConfig) options {
	o := options{
		level:   slog.LevelInfo,
		format:  formatJSON,
		keys:    keyOrder,
		keep:    1,
		every:   50,
		profile: strings.ToLower(strings.TrimSpace(lc.Profile)),
		file:    strings.TrimSpace(lc.File),
	}
	if o.profile == "" {
		o.profile = "prod"
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		o.level = slog.LevelDebug
	case "warn", "warning":
		o.level = slog.LevelWarn
	case "error":
		o.level = slog.LevelError
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text":
		o.format = formatKV
	case "json":
	default:
		if o.profile == "dev" || o.profile == "debug" {
			o.format = formatKV
		}
	}

	if keys := splitKeys(lc.Keys); len(keys) > 0 {
		o.keys = keys
	}
	if keep, every, ok := parseSample(lc.DebugSample); ok {
		o.keep, o.every = keep, every
	}
	return o
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" && k != "default" {
			keys = append(keys, k)
		}
	}
	return keys
}

func emit(ctx context.Context, component string, lvl slog.Level, event string, attrs []slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !base.Enabled(ctx, lvl) {
		return
	}
	base.LogAttrs(ctx, lvl, event, append([]slog.Attr{slog.String("component", component)}, attrs...)...)
}

// Debug logs event for component at debug level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelDebug, event, attrs)
}

// Info logs event for component at info level.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelInfo, event, attrs)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelWarn, event, attrs)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, component, slog.LevelError, event, attrs)
}
