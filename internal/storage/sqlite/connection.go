// Package sqlite implements the JobStore and SourceStore collaborators
// over a single-writer SQLite database, adapted from the teacher's
// internal/storage/sqlite connection-management style.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/ternarybob/logsentinel/internal/common"
)

// unixToTime converts a stored Unix-seconds column back to UTC, the
// inverse of the .Unix() calls used throughout JobStore/SourceStore.
func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// DB wraps a single-writer SQLite connection with the pragmas the teacher
// applies to avoid SQLITE_BUSY under the ingest pipeline's write load.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
}

// Open creates the data directory, opens the database, applies pragmas,
// and runs the schema migration.
func Open(config common.SQLiteConfig, logger arbor.ILogger) (*DB, error) {
	if dir := filepath.Dir(config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite does not handle concurrent writers well; the queue and job
	// store share one writer connection by design (spec §5: per-process
	// session, never cross PIDs).
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	d := &DB{db: sqlDB, logger: logger}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return d, nil
}

// Raw returns the underlying *sql.DB, for the queue package to share the
// same file (goqite.Setup runs against it separately).
func (d *DB) Raw() *sql.DB { return d.db }

func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
