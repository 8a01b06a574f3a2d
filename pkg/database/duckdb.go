package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/wonny/meridian/pkg/config"
)

// ErrWriterContention is returned when the store file is already locked by
// another writer. The pipeline treats this as "another run is in progress"
// and aborts without queueing.
var ErrWriterContention = errors.New("store is locked by another writer")

// DB wraps a database/sql handle onto the embedded DuckDB store.
// A writer handle holds the file's write lock for its whole lifetime;
// reader handles are read-only and may coexist with one writer.
type DB struct {
	SQL      *sql.DB
	path     string
	readOnly bool
}

// NewWriter opens the store read-write. Only one writer may exist at a time
// across processes; a second writer fails with ErrWriterContention.
func NewWriter(cfg *config.Config) (*DB, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?threads=%d", cfg.Database.Path, cfg.Database.Threads)
	db, err := open(dsn, false)
	if err != nil {
		return nil, err
	}

	if cfg.Database.MemoryLimit != "" {
		limit := "SET memory_limit='" + strings.ReplaceAll(cfg.Database.MemoryLimit, "'", "") + "'"
		if _, err := db.SQL.Exec(limit); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	db.path = cfg.Database.Path
	return db, nil
}

// NewReader opens an independent read-only handle onto the store.
// Readers never block the writer and observe only committed state.
func NewReader(cfg *config.Config) (*DB, error) {
	dsn := cfg.Database.Path + "?access_mode=read_only"
	db, err := open(dsn, true)
	if err != nil {
		return nil, err
	}
	db.path = cfg.Database.Path
	return db, nil
}

// NewMemory opens an in-memory store; used by tests.
func NewMemory() (*DB, error) {
	return open("", false)
}

func open(dsn string, readOnly bool) (*DB, error) {
	sqlDB, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// DuckDB connections from one handle share a single database instance,
	// so concurrent per-source transactions each get their own connection.
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		if isLockError(err) {
			return nil, fmt.Errorf("%w: %s", ErrWriterContention, err)
		}
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	return &DB{SQL: sqlDB, readOnly: readOnly}, nil
}

// isLockError reports whether err is DuckDB's file-lock conflict.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "lock") && strings.Contains(msg, "conflict") ||
		strings.Contains(msg, "could not set lock")
}

// Path returns the store file path (empty for in-memory).
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether this handle was opened read-only.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// Close closes the handle and releases the write lock if held.
func (db *DB) Close() error {
	if db.SQL != nil {
		return db.SQL.Close()
	}
	return nil
}

// Ping checks if the store is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Querier is the common surface of *sql.DB and *sql.Tx that table builders
// run against.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TmpName returns the temporary-build name for a table. Rebuilds create the
// table under this name and swap it in with ReplaceTable.
func TmpName(table string) string {
	return table + "__build"
}

// ReplaceTable atomically swaps the table built under TmpName(table) into
// place. Run inside the stage's transaction so readers never observe a
// half-built table.
func ReplaceTable(ctx context.Context, q Querier, table string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	rename := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", TmpName(table), table)
	if _, err := q.ExecContext(ctx, rename); err != nil {
		return fmt.Errorf("rename %s: %w", TmpName(table), err)
	}
	return nil
}

// TableExists reports whether a table is present in the store.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var count int
	query := `SELECT count(*) FROM information_schema.tables WHERE table_name = ?`
	if err := q.QueryRowContext(ctx, query, table).Scan(&count); err != nil {
		return false, fmt.Errorf("query table existence: %w", err)
	}
	return count > 0, nil
}

// ReaderDSN builds the read-only connection string readers should use.
// Exposed so external read surfaces connect the same way the API does.
func ReaderDSN(path string) string {
	return path + "?access_mode=read_only"
}
