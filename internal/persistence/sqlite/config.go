package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// Config holds the PRAGMAs every connection this package opens is held to.
// The same Config backs all three of the batch's SQLite databases (raw
// event source, pending-session store, derived-session sink): WAL mode so
// the source can be read while the pending store is written in the same
// run, and a busy_timeout so lock contention between the driver's own
// transaction and a concurrent reader resolves by waiting rather than
// failing the batch outright.
type Config struct {
	BusyTimeout  time.Duration
	MaxOpenConns int // 1 for a dedicated writer, larger is safe for a WAL reader
}

// DefaultConfig returns the PRAGMAs a single incremental batch run opens
// its databases with.
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25, // database/sql manages the pool from here
	}
}

// dsn builds the modernc.org/sqlite DSN shared by Open and VerifyIntegrity.
// _pragma query parameters are the documented way to apply a PRAGMA to
// every connection the pool opens, not just the first one established.
func dsn(path string, readOnly bool, cfg Config) string {
	if readOnly {
		return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)", path, cfg.BusyTimeout.Milliseconds())
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds())
}

// Open opens a pooled connection against one of the batch's SQLite
// databases with WAL mode and busy_timeout applied to every connection in
// the pool.
func Open(dbPath string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(dbPath, false, cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}
