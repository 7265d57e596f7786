package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/vapordeck/vapordeck/pkg/lifecycle"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds journal database configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Journal records lifecycle events in SQLite. It implements
// lifecycle.Recorder.
type Journal struct {
	db   *sql.DB
	path string
	cfg  Config
}

var (
	_ lifecycle.Recorder      = (*Journal)(nil)
	_ lifecycle.HistoryReader = (*Journal)(nil)
)

// New creates a journal over the database at cfg.Path. Call Init
// before use.
func New(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &Journal{path: cfg.Path, cfg: cfg}, nil
}

// Init opens the database, enables WAL mode and runs migrations.
func (j *Journal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", j.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(j.cfg.MaxOpenConns)
	db.SetMaxIdleConns(j.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(j.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping journal database: %w", err)
	}

	j.db = db
	return j.migrate()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, ev lifecycle.Event) error {
	if j.db == nil {
		return fmt.Errorf("journal not initialized")
	}

	when := ev.Time
	if when.IsZero() {
		when = time.Now().UTC()
	}

	query := `
		INSERT INTO events (instance, verb, provider, outcome, error, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := j.db.ExecContext(ctx, query,
		ev.Instance, string(ev.Verb), ev.Provider, string(ev.Outcome), ev.Error, when,
	); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// History returns the most recent events for instance, newest first.
func (j *Journal) History(ctx context.Context, instance string, limit int) ([]lifecycle.Event, error) {
	if j.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT instance, verb, provider, outcome, error, occurred_at
		FROM events
		WHERE instance = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, instance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []lifecycle.Event
	for rows.Next() {
		var ev lifecycle.Event
		var verb, outcome string
		if err := rows.Scan(&ev.Instance, &verb, &ev.Provider, &outcome, &ev.Error, &ev.Time); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Verb = lifecycle.Verb(verb)
		ev.Outcome = lifecycle.Outcome(outcome)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastOutcome returns the most recent event for instance, or nil when
// none has been journaled.
func (j *Journal) LastOutcome(ctx context.Context, instance string) (*lifecycle.Event, error) {
	events, err := j.History(ctx, instance, 1)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// Prune removes events older than cutoff and returns how many were
// deleted.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if j.db == nil {
		return 0, fmt.Errorf("journal not initialized")
	}

	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}
