package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vibeus/cros-session-deriver/internal/model"
)

// Store is the Pending-Session Store collaborator (spec §2, §4.3): a
// keyed-by-serial durable store holding at most one pending session per
// device, supporting load-all, insert, update, delete. It operates against a single
// *sql.Tx so every mutation the driver issues within a run is part of one
// deferred-commit transaction (spec §5).
type Store struct {
	tx *sql.Tx
}

// New wraps tx for use as the Pending-Session Store. The caller owns the
// transaction's lifetime (Commit/Rollback).
func New(tx *sql.Tx) *Store {
	return &Store{tx: tx}
}

// LoadAll reads every pending session row, for State Index reconstruction at
// startup (spec §4.4).
func (s *Store) LoadAll(ctx context.Context) ([]*model.PendingSession, error) {
	rows, err := s.tx.QueryContext(ctx, `
		SELECT serial, user_id, raw_session_id, start_time, last_event_time,
		       session_type, last_state, split_counter
		FROM `+TablePendingSessions)
	if err != nil {
		return nil, fmt.Errorf("store: load all pending sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.PendingSession
	for rows.Next() {
		p, err := scanPendingSession(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan pending session: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load all pending sessions: %w", err)
	}
	return out, nil
}

// Exists reports whether a pending session row exists for serial. The Batch
// Driver's Initiate procedure uses this to detect store/memory
// desynchronization before inserting a fresh row (spec §4.3).
func (s *Store) Exists(ctx context.Context, serial string) (bool, error) {
	var count int
	err := s.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+TablePendingSessions+" WHERE serial = ?", serial,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: exists check for serial %q: %w", serial, err)
	}
	return count > 0, nil
}

// Insert adds a fresh pending session row.
func (s *Store) Insert(ctx context.Context, p *model.PendingSession) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO `+TablePendingSessions+`
			(serial, user_id, raw_session_id, start_time, last_event_time,
			 session_type, last_state, split_counter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Serial, p.UserID, p.RawSessionID,
		model.FormatTimestamp(p.StartTime), model.FormatTimestamp(p.LastEventTime),
		p.SessionType, string(p.LastState), p.SplitCounter)
	if err != nil {
		return fmt.Errorf("store: insert pending session for serial %q: %w", p.Serial, err)
	}
	return nil
}

// Update overwrites the row for p.Serial with p's current fields (spec §4.3's
// "flush"). It never inserts: when no row matches p.Serial it returns an error.
func (s *Store) Update(ctx context.Context, p *model.PendingSession) error {
	res, err := s.tx.ExecContext(ctx, `
		UPDATE `+TablePendingSessions+`
		SET user_id = ?, raw_session_id = ?, start_time = ?, last_event_time = ?,
		    session_type = ?, last_state = ?, split_counter = ?
		WHERE serial = ?`,
		p.UserID, p.RawSessionID,
		model.FormatTimestamp(p.StartTime), model.FormatTimestamp(p.LastEventTime),
		p.SessionType, string(p.LastState), p.SplitCounter, p.Serial)
	if err != nil {
		return fmt.Errorf("store: update pending session for serial %q: %w", p.Serial, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update pending session for serial %q: %w", p.Serial, err)
	}
	if affected == 0 {
		return fmt.Errorf("store: update pending session for serial %q: no matching row", p.Serial)
	}
	return nil
}

// Delete removes the pending session row for serial.
func (s *Store) Delete(ctx context.Context, serial string) error {
	if _, err := s.tx.ExecContext(ctx, "DELETE FROM "+TablePendingSessions+" WHERE serial = ?", serial); err != nil {
		return fmt.Errorf("store: delete pending session for serial %q: %w", serial, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingSession(r rowScanner) (*model.PendingSession, error) {
	var (
		p                        model.PendingSession
		startTime, lastEventTime string
		lastState                string
	)
	if err := r.Scan(&p.Serial, &p.UserID, &p.RawSessionID, &startTime, &lastEventTime,
		&p.SessionType, &lastState, &p.SplitCounter); err != nil {
		return nil, err
	}
	p.LastState = model.LastState(lastState)

	st, err := model.ParseTimestamp(startTime)
	if err != nil {
		return nil, fmt.Errorf("parsing start_time: %w", err)
	}
	p.StartTime = st

	let, err := model.ParseTimestamp(lastEventTime)
	if err != nil {
		return nil, fmt.Errorf("parsing last_event_time: %w", err)
	}
	p.LastEventTime = let

	return &p, nil
}
