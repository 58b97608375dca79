// Package store keeps versioned station mapping tables and an audit trail
// in SQLite.
//
// Every save produces a new immutable version. The latest version of a
// station is the one with the highest number; deleting it makes the previous
// one current again. Version numbers are never reused.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// Global is the reserved station whose table serves stations without their own.
const Global = "global"

var (
	// ErrNotFound is returned when a station or version does not exist.
	ErrNotFound = errors.New("mapping not found")
	// ErrNoMappings is returned when neither a station nor its fallback has a mapping.
	ErrNoMappings = errors.New("no mappings configured")
	// ErrInvalidStation is returned for blank station codes.
	ErrInvalidStation = errors.New("invalid station code")
	// ErrEmptyMapping is returned when a save would store zero entries.
	ErrEmptyMapping = errors.New("mapping has no entries")
)

// Audit actions.
const (
	ActionSaved   = "mapping_saved"
	ActionDeleted = "mapping_deleted"
)

// Version describes one stored revision of a station table.
type Version struct {
	ID         string    `json:"id"`
	Station    string    `json:"station"`
	Number     int       `json:"version"`
	Author     string    `json:"author,omitempty"`
	Note       string    `json:"note,omitempty"`
	EntryCount int       `json:"entry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// StationSummary is one row of the station listing.
type StationSummary struct {
	Station   string    `json:"station"`
	Versions  int       `json:"versions"`
	Latest    int       `json:"latest_version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEntry records a change to a station table.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Station   string    `json:"station"`
	Action    string    `json:"action"`
	Version   int       `json:"version"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a SQLite-backed mapping store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := New(db, logger)
	s.path = path
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("mapping store opened", "path", path)
	return s, nil
}

// New wraps an already opened database. Migrations are not run.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate runs all pending database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Path returns the database path given to Open.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NormalizeStation trims and upper-cases a station code. The reserved
// global station is always returned in lower case.
func NormalizeStation(station string) (string, error) {
	station = strings.TrimSpace(station)
	if station == "" {
		return "", ErrInvalidStation
	}
	if strings.EqualFold(station, Global) {
		return Global, nil
	}
	return strings.ToUpper(station), nil
}

func generateID() string {
	return uuid.New().String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
