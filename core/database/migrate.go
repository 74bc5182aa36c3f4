package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/Gabrielbm2/chatbot-telegram/core/logger"
)

// RunMigrations waits for the server and applies all up migrations found in
// dir of src.
func RunMigrations(ctx context.Context, cfg Config, src fs.FS, dir string) error {
	if err := WaitForPostgres(ctx, cfg.DSN(), 30*time.Second); err != nil {
		logger.Error(ctx, "db.migrate", "migrate.wait", slog.Any("err", err))
		return fmt.Errorf("database not ready: %w", err)
	}
	return MigrateURL(cfg.URL(), src, dir)
}

// MigrateURL applies the embedded migrations against a postgres:// URL.
func MigrateURL(dbURL string, src fs.FS, dir string) error {
	ctx := context.Background()
	files := listMigrationFiles(src, dir)
	logger.Debug(ctx, "db.migrate", "migrate.resolve",
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
		slog.String("files", preview(files, 6)),
	)

	driver, err := iofs.New(src, dir)
	if err != nil {
		return fmt.Errorf("open migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, dbURL)
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.init", slog.Any("err", err))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)

	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", took),
			slog.Any("err", upErr),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	to, _, _ := m.Version()
	logger.Info(ctx, "db.migrate", "migrate.apply",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(selectApplied(files, uint64(from), uint64(to)))),
		slog.Duration("duration", took),
	)
	return nil
}

func listMigrationFiles(src fs.FS, dir string) []string {
	entries, err := fs.ReadDir(src, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// preview joins the first n names and counts the rest.
func preview(names []string, n int) string {
	if len(names) <= n {
		return strings.Join(names, ",")
	}
	return strings.Join(names[:n], ",") + ",+" + strconv.Itoa(len(names)-n)
}

func parseVersion(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
