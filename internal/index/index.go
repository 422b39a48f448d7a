// Package index implements the in-memory State Index from spec §4.4: a
// plain map from serial to the latest pending session, reconstructed once at
// startup from the Pending-Session Store. It is single-writer by
// construction — the Batch Driver is the only caller, and the core runs
// single-threaded per spec §5 — so no mutex guards it.
package index

import (
	"context"
	"fmt"

	"github.com/vibeus/cros-session-deriver/internal/model"
	"github.com/vibeus/cros-session-deriver/internal/sm"
)

// Loader is the subset of the Pending-Session Store the index needs to
// reconstruct itself at startup.
type Loader interface {
	LoadAll(ctx context.Context) ([]*model.PendingSession, error)
}

// Index is the serial -> pending session mapping.
type Index struct {
	entries map[string]*model.PendingSession
}

// Load builds an Index from every row in the Pending-Session Store. A
// duplicate serial across loaded rows is a hard error (spec §3, §4.4).
func Load(ctx context.Context, loader Loader) (*Index, error) {
	rows, err := loader.LoadAll(ctx)
	if err != nil {
		return nil, sm.New(sm.KindConnectionOrQuery, "loading pending sessions", err)
	}
	idx := &Index{entries: make(map[string]*model.PendingSession, len(rows))}
	for _, row := range rows {
		if _, exists := idx.entries[row.Serial]; exists {
			return nil, sm.New(sm.KindUnmatchedPendingSession,
				fmt.Sprintf("duplicate pending session for serial %q at load", row.Serial), nil)
		}
		idx.entries[row.Serial] = row
	}
	return idx, nil
}

// Get returns the pending session for serial, or nil if absent.
func (idx *Index) Get(serial string) *model.PendingSession {
	return idx.entries[serial]
}

// Put inserts or replaces the pending session for its serial.
func (idx *Index) Put(p *model.PendingSession) {
	idx.entries[p.Serial] = p
}

// Delete removes the pending session for serial, if any.
func (idx *Index) Delete(serial string) {
	delete(idx.entries, serial)
}

// Len reports the number of pending sessions currently held.
func (idx *Index) Len() int {
	return len(idx.entries)
}
