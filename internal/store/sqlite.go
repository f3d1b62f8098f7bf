// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides club/membership/feed persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/2389/fanclub-gateway/internal/apperr"
)

// Driver names accepted by Open.
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Options configures Open.
type Options struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure Go
// driver. The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(Options{Path: path})
}

// Open creates a SQLite store with explicit driver options.
func Open(opts Options) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	if opts.Path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, opts.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serializes every transaction in this process, which
	// makes each unit of work linearizable. It also keeps per-connection
	// pragmas and :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", opts.Path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS clubs (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			name         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			avatar       TEXT NOT NULL DEFAULT '',
			member_count INTEGER NOT NULL DEFAULT 1,
			status       TEXT NOT NULL DEFAULT 'active',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			CHECK (status IN ('active', 'disbanded')),
			CHECK (member_count >= 0)
		);

		-- At most one active club per name per owner
		CREATE UNIQUE INDEX IF NOT EXISTS idx_clubs_owner_name_active
			ON clubs(owner_id, name) WHERE status = 'active';

		CREATE INDEX IF NOT EXISTS idx_clubs_status_created
			ON clubs(status, created_at DESC);

		CREATE TABLE IF NOT EXISTS memberships (
			club_id      TEXT NOT NULL REFERENCES clubs(id),
			principal_id TEXT NOT NULL,
			role         TEXT NOT NULL,
			status       TEXT NOT NULL,
			joined_at    TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			PRIMARY KEY (club_id, principal_id),
			CHECK (role IN ('owner', 'admin', 'member')),
			CHECK (status IN ('active', 'removed'))
		);

		-- Exactly one active owner per club
		CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_single_owner
			ON memberships(club_id) WHERE role = 'owner' AND status = 'active';

		CREATE INDEX IF NOT EXISTS idx_memberships_principal
			ON memberships(principal_id, status);

		CREATE TABLE IF NOT EXISTS posts (
			id         TEXT PRIMARY KEY,
			club_id    TEXT NOT NULL REFERENCES clubs(id),
			author_id  TEXT NOT NULL,
			body       TEXT NOT NULL,
			like_count INTEGER NOT NULL DEFAULT 0,
			deleted    INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (like_count >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_posts_club_created
			ON posts(club_id, deleted, created_at DESC);

		CREATE TABLE IF NOT EXISTS post_likes (
			post_id      TEXT NOT NULL REFERENCES posts(id),
			principal_id TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			PRIMARY KEY (post_id, principal_id)
		);

		-- Client request keys already applied to a like toggle
		CREATE TABLE IF NOT EXISTS like_requests (
			principal_id TEXT NOT NULL,
			request_key  TEXT NOT NULL,
			post_id      TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			PRIMARY KEY (principal_id, request_key)
		);

		CREATE INDEX IF NOT EXISTS idx_like_requests_created
			ON like_requests(created_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id           TEXT PRIMARY KEY,
			actor_principal_id TEXT NOT NULL,
			action             TEXT NOT NULL,
			target_type        TEXT NOT NULL,
			target_id          TEXT NOT NULL,
			ts                 TEXT NOT NULL,
			detail_json        TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_target ON audit_log(target_type, target_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "clubs",
			column: "level",
			apply:  `ALTER TABLE clubs ADD COLUMN level INTEGER NOT NULL DEFAULT 1`,
		},
		{
			table:  "posts",
			column: "images_json",
			apply:  `ALTER TABLE posts ADD COLUMN images_json TEXT NOT NULL DEFAULT '[]'`,
		},
		{
			table:  "audit_log",
			column: "club_id",
			apply:  `ALTER TABLE audit_log ADD COLUMN club_id TEXT NOT NULL DEFAULT ''`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	// Indexes over migrated columns can only be created once the column exists.
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_club ON audit_log(club_id, ts DESC)`); err != nil {
		return fmt.Errorf("creating audit club index: %w", err)
	}

	return nil
}

// WithTx runs fn inside a read-write transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, fn)
}

// View runs fn inside a transaction used only for reads, giving the caller a
// consistent snapshot across several queries.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, fn)
}

func (s *SQLiteStore) run(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return retryable(classify("beginning transaction", err))
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err := fn(&Tx{tx: sqlTx, logger: s.logger}); err != nil {
		return retryable(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return retryable(classify("committing transaction", err))
	}
	committed = true
	return nil
}

// Ping verifies the database connection is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE/CHECK/PK constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// isBusy checks if the error is SQLITE_BUSY or SQLITE_LOCKED
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database table is locked")
}

// classify wraps a driver error, tagging constraint and lock failures with the
// package sentinels so callers can branch with errors.Is.
func classify(op string, err error) error {
	switch {
	case isConstraintViolation(err):
		return fmt.Errorf("%s: %w: %w", op, ErrConstraint, err)
	case isBusy(err):
		return fmt.Errorf("%s: %w: %w", op, ErrBusy, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// retryable surfaces lock timeouts as TRANSIENT_STORAGE so callers know the
// request may be retried unchanged. Constraint failures no caller translated
// become CONFLICT.
func retryable(err error) error {
	if apperr.CodeOf(err) != apperr.CodeInternal {
		return err
	}
	switch {
	case errors.Is(err, ErrBusy):
		return apperr.Wrap(apperr.CodeTransientStorage, "storage busy, retry later", err)
	case errors.Is(err, ErrConstraint):
		return apperr.Wrap(apperr.CodeConflict, "conflicting concurrent change", err)
	default:
		return err
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by older builds used RFC3339.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

