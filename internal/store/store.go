// Package store provides the shared transactional store for audit and
// usage rows. It speaks plain database/sql and runs against either an
// embedded SQLite database or PostgreSQL; both tables are append-only.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx as database/sql driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // cgo-free sqlite driver
)

// Driver identifies the SQL dialect in use.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "pgx"
)

// Store wraps the database handle. All methods are safe for concurrent
// use; serialization is the pool's concern, not the caller's.
type Store struct {
	db     *sql.DB
	driver Driver
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) an embedded SQLite store.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	return newStore(db, DriverSQLite, logger)
}

// OpenPostgres opens a pooled PostgreSQL store.
func OpenPostgres(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newStore(db, DriverPostgres, logger)
}

func newStore(db *sql.DB, driver Driver, logger *zap.Logger) (*Store, error) {
	s := &Store{db: db, driver: driver, logger: logger}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package are written with ? and shared across both dialects.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type   TEXT NOT NULL,
	tool         TEXT,
	action       TEXT,
	user_context TEXT,
	reasoning    TEXT,
	params_json  TEXT,
	result       TEXT,
	success      INTEGER,
	source       TEXT NOT NULL DEFAULT 'agent',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_log_tool ON audit_log(tool);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);

CREATE TABLE IF NOT EXISTS llm_usage (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	backend           TEXT NOT NULL,
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	estimated_cost    REAL NOT NULL DEFAULT 0.0,
	context           TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_usage_created ON llm_usage(created_at);
CREATE INDEX IF NOT EXISTS idx_llm_usage_backend ON llm_usage(backend);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id           BIGSERIAL PRIMARY KEY,
	event_type   TEXT NOT NULL,
	tool         TEXT,
	action       TEXT,
	user_context TEXT,
	reasoning    TEXT,
	params_json  TEXT,
	result       TEXT,
	success      INTEGER,
	source       TEXT NOT NULL DEFAULT 'agent',
	created_at   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_log_tool ON audit_log(tool);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);

CREATE TABLE IF NOT EXISTS llm_usage (
	id                BIGSERIAL PRIMARY KEY,
	backend           TEXT NOT NULL,
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens      INTEGER NOT NULL DEFAULT 0,
	estimated_cost    DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	context           TEXT NOT NULL DEFAULT '',
	created_at        BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_llm_usage_created ON llm_usage(created_at);
CREATE INDEX IF NOT EXISTS idx_llm_usage_backend ON llm_usage(backend);
`

// migrate applies the append-only schema. Timestamps are stored as unix
// microseconds so ordering and window comparisons behave identically in
// both dialects.
func (s *Store) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	// Statements run one at a time: the pgx prepared-statement path does
	// not accept multi-command strings.
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// micros converts a time to the stored representation.
func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

// fromMicros converts a stored timestamp back to UTC time.
func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// nullStr maps "" to NULL for optional text columns.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
