// Package store implements the Pending-Session Store collaborator (spec
// §4.3, §4.4, §6) against database/sql + modernc.org/sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Table names from spec §6. SQLite has no schema/catalog concept
// equivalent to Postgres's "cros_derived.pending_sessions" dotted form, so
// the schema qualifier is collapsed into the table name with an underscore —
// the one concrete-engine divergence this adapter takes (see DESIGN.md).
const (
	TablePendingSessions = "cros_derived_pending_sessions"
	TableCrosSessions    = "cros_derived_cros_sessions"
)

const createPendingSessionsSQL = `
CREATE TABLE IF NOT EXISTS ` + TablePendingSessions + ` (
	serial          TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	raw_session_id  TEXT NOT NULL,
	start_time      TEXT NOT NULL,
	last_event_time TEXT NOT NULL,
	session_type    TEXT NOT NULL,
	last_state      TEXT NOT NULL,
	split_counter   INTEGER NOT NULL
)`

const createCrosSessionsSQL = `
CREATE TABLE IF NOT EXISTS ` + TableCrosSessions + ` (
	serial       TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	tstamp       TEXT NOT NULL,
	session_type TEXT NOT NULL,
	action       TEXT NOT NULL
)`

// Bootstrap creates the pending-session and derived-session tables if they
// do not already exist. It is idempotent: safe to call on every run. When
// --intermediate is given, the two tables live in distinct connections and
// the caller should use BootstrapPending/BootstrapSink instead so that each
// connection only ever gets the one table it actually owns.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	if err := BootstrapPending(ctx, db); err != nil {
		return err
	}
	return BootstrapSink(ctx, db)
}

// BootstrapPending creates the pending-session table if it does not exist.
func BootstrapPending(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createPendingSessionsSQL); err != nil {
		return fmt.Errorf("store: bootstrap %s: %w", TablePendingSessions, err)
	}
	return nil
}

// BootstrapSink creates the derived-session table if it does not exist.
func BootstrapSink(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createCrosSessionsSQL); err != nil {
		return fmt.Errorf("store: bootstrap %s: %w", TableCrosSessions, err)
	}
	return nil
}

// Drop implements the --drop CLI flag (spec §6): drop the derived-session
// and pending-session tables, then exit. Like Bootstrap, this assumes both
// tables live in the same connection; split connections should use
// DropPending/DropSink instead.
func Drop(ctx context.Context, db *sql.DB) error {
	if err := DropSink(ctx, db); err != nil {
		return err
	}
	return DropPending(ctx, db)
}

// DropPending drops the pending-session table.
func DropPending(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+TablePendingSessions); err != nil {
		return fmt.Errorf("store: drop %s: %w", TablePendingSessions, err)
	}
	return nil
}

// DropSink drops the derived-session table.
func DropSink(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+TableCrosSessions); err != nil {
		return fmt.Errorf("store: drop %s: %w", TableCrosSessions, err)
	}
	return nil
}
