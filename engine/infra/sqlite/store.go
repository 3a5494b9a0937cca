// Package sqlite is the embedded persistence layer: one database file under
// the data dir, additive goose migrations, and narrow repositories per
// domain store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// Register the modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/aionlabs/aion/engine/core"
)

// Config captures SQLite store settings derived from application config.
type Config struct {
	// Path is the database location or ":memory:" for tests.
	Path string
	// BusyTimeout configures PRAGMA busy_timeout.
	BusyTimeout time.Duration
	// MaxOpenConns controls the database/sql pool size.
	MaxOpenConns int
	// MaxIdleConns limits retained idle connections.
	MaxIdleConns int
	// ConnMaxLifetime bounds connection reuse.
	ConnMaxLifetime time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BusyTimeout <= 0 {
		out.BusyTimeout = 5 * time.Second
	}
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = 4
	}
	if out.MaxIdleConns <= 0 {
		out.MaxIdleConns = 2
	}
	return out
}

func buildDSN(cfg *Config) (string, error) {
	if cfg.Path == "" {
		return "", core.NewError(errors.New("database path is required"), "INVALID_CONFIG", nil)
	}
	if cfg.Path == ":memory:" {
		// Shared cache keeps all pool connections on one in-memory database.
		return "file::memory:?cache=shared", nil
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10)+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + cfg.Path + "?" + q.Encode(), nil
}

// Open connects to the database, applies pragmas and runs migrations.
func Open(ctx context.Context, cfg *Config) (*sql.DB, error) {
	resolved := cfg.withDefaults()
	if resolved.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(resolved.Path), 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: ensure directory: %w", err)
		}
	}
	dsn, err := buildDSN(&resolved)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(resolved.MaxOpenConns)
	db.SetMaxIdleConns(resolved.MaxIdleConns)
	db.SetConnMaxLifetime(resolved.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// timeFormat is how timestamps are stored; TEXT keeps rows greppable.
const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
