// Package authlog persists a session event history (sign-ins, renewals,
// sign-outs) to an embedded SQLite database. It backs `sso status
// --history` and implements session.EventSink. Recording is best-effort by
// contract: a broken history database must never interfere with the session
// itself, so Record logs failures instead of returning them.
package authlog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one recorded session event.
type Entry struct {
	At     time.Time
	Event  string
	Detail string
}

// Log is a SQLite-backed session event log.
type Log struct {
	db     *sql.DB
	insert *sql.Stmt
	recent *sql.Stmt
	logger *slog.Logger
}

// Open opens (creating if necessary) the event log at dbPath and applies
// pending schema migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("opening session history database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("authlog: opening %s: %w", dbPath, err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("authlog: enabling WAL: %w", err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	insert, err := db.Prepare("INSERT INTO events (at, event, detail) VALUES (?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("authlog: preparing insert: %w", err)
	}

	recent, err := db.Prepare("SELECT at, event, detail FROM events ORDER BY at DESC, id DESC LIMIT ?")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("authlog: preparing query: %w", err)
	}

	return &Log{db: db, insert: insert, recent: recent, logger: logger}, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("authlog: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("authlog: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("authlog: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration", slog.String("source", r.Source.Path))
	}

	return nil
}

// Record appends an event. Implements session.EventSink; failures are
// logged, never returned.
func (l *Log) Record(ctx context.Context, event, detail string) {
	_, err := l.insert.ExecContext(ctx, time.Now().UnixMilli(), event, detail)
	if err != nil {
		l.logger.Warn("recording session event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.recent.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("authlog: querying events: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			at    int64
			entry Entry
		)

		if err := rows.Scan(&at, &entry.Event, &entry.Detail); err != nil {
			return nil, fmt.Errorf("authlog: scanning event: %w", err)
		}

		entry.At = time.UnixMilli(at)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("authlog: iterating events: %w", err)
	}

	return entries, nil
}

// Close releases the prepared statements and the database handle.
func (l *Log) Close() error {
	l.insert.Close()
	l.recent.Close()

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("authlog: closing database: %w", err)
	}

	return nil
}
