// Package sink implements the Derived-Session Sink collaborator (spec
// §4.5): an append-only store for emitted SessionStart/SessionEnd rows.
package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vibeus/cros-session-deriver/internal/model"
	"github.com/vibeus/cros-session-deriver/internal/store"
)

// Sink appends derived session rows, one row per emission (spec §4.5: "no
// batched-insert optimization not asked for"), against a single *sql.Tx so
// emissions are part of the run's deferred-commit transaction (spec §5).
type Sink struct {
	tx *sql.Tx
}

// New wraps tx for use as the Derived-Session Sink.
func New(tx *sql.Tx) *Sink {
	return &Sink{tx: tx}
}

// Append inserts one derived session row.
func (s *Sink) Append(ctx context.Context, row model.DerivedSession) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO `+store.TableCrosSessions+`
			(serial, user_id, session_id, tstamp, session_type, action)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.Serial, row.UserID, row.SessionID,
		model.FormatTimestamp(row.Tstamp), row.SessionType, string(row.Action))
	if err != nil {
		return fmt.Errorf("sink: append derived session %s/%s: %w", row.Serial, row.SessionID, err)
	}
	return nil
}
