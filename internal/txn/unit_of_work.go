// Package txn implements the deferred-commit transaction discipline from
// spec §5: all mutations accumulate within a run and commit atomically at
// finish, pending store first then derived sink when they are distinct
// connections.
package txn

import (
	"context"
	"database/sql"
	"fmt"
)

// UnitOfWork holds the transaction(s) backing one batch run. When
// --intermediate is omitted the derived-sink connection is reused for the
// pending store (spec §6, SPEC_FULL §9), and both collaborators share one
// *sql.Tx rather than two handles racing over SQLite's single-writer lock.
type UnitOfWork struct {
	pendingTx *sql.Tx
	sinkTx    *sql.Tx
	shared    bool
}

// Begin starts the transaction(s) for a run. pendingDB and sinkDB may be the
// same *sql.DB (intermediate store omitted) or distinct ones.
func Begin(ctx context.Context, pendingDB, sinkDB *sql.DB) (*UnitOfWork, error) {
	shared := pendingDB == sinkDB

	pendingTx, err := pendingDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("txn: begin pending store transaction: %w", err)
	}

	if shared {
		return &UnitOfWork{pendingTx: pendingTx, sinkTx: pendingTx, shared: true}, nil
	}

	sinkTx, err := sinkDB.BeginTx(ctx, nil)
	if err != nil {
		_ = pendingTx.Rollback()
		return nil, fmt.Errorf("txn: begin derived sink transaction: %w", err)
	}
	return &UnitOfWork{pendingTx: pendingTx, sinkTx: sinkTx}, nil
}

// PendingTx returns the transaction backing the Pending-Session Store.
func (u *UnitOfWork) PendingTx() *sql.Tx { return u.pendingTx }

// SinkTx returns the transaction backing the Derived-Session Sink.
func (u *UnitOfWork) SinkTx() *sql.Tx { return u.sinkTx }

// Commit commits pending store mutations first, then the derived sink, per
// spec §5's ordering guarantee. In debug mode the caller must call Rollback
// instead (spec §5: "commit is skipped and no durable side effects occur").
func (u *UnitOfWork) Commit() error {
	if err := u.pendingTx.Commit(); err != nil {
		return fmt.Errorf("txn: commit pending store: %w", err)
	}
	if u.shared {
		return nil
	}
	if err := u.sinkTx.Commit(); err != nil {
		return fmt.Errorf("txn: commit derived sink: %w", err)
	}
	return nil
}

// Rollback discards all mutations accumulated this run.
func (u *UnitOfWork) Rollback() {
	_ = u.pendingTx.Rollback()
	if !u.shared {
		_ = u.sinkTx.Rollback()
	}
}
