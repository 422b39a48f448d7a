// Package source implements the Event Source collaborator (spec §4.1): an
// ordered, filtered read of raw telemetry action events. The vendor-defined
// backing table's DDL is out of scope (spec §1) — this adapter only issues
// the query contract spec §6 names, against a table named raw_events, the
// natural name for the fixture/test schema this adapter assumes.
package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vibeus/cros-session-deriver/internal/model"
)

// query is the event-source query contract from spec §4.1/§6: exactly the
// named columns, predicate collector_tstamp > bookmark AND serial not like
// '%OEM%', ordered serial asc, tstamp asc, action asc. The action-name
// tiebreak is load-bearing (spec §4.1): it is why ORDER BY lists action
// last, not an arbitrary choice.
const query = `
SELECT serial, user_id, action, tstamp, session_id, session_type, collector_tstamp
FROM raw_events
WHERE collector_tstamp > ? AND serial NOT LIKE '%OEM%'
ORDER BY serial ASC, tstamp ASC, action ASC`

// Source reads raw events from database/sql + modernc.org/sqlite.
type Source struct {
	db *sql.DB
}

// New wraps db for use as the Event Source.
func New(db *sql.DB) *Source {
	return &Source{db: db}
}

// SelectNewEvents returns every event with collector_tstamp strictly greater
// than bookmark, in the ordering spec §4.1 requires. bookmark is compared as
// a string, matching spec §9's "bookmark as string comparison" — callers
// must pass a canonically formatted value (model.FormatTimestamp).
func (s *Source) SelectNewEvents(ctx context.Context, bookmark string) ([]model.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, bookmark)
	if err != nil {
		return nil, fmt.Errorf("source: select new events: %w", err)
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var (
			ev                      model.RawEvent
			action                  string
			tstamp, collectorTstamp string
		)
		if err := rows.Scan(&ev.Serial, &ev.UserID, &action, &tstamp, &ev.SessionID, &ev.SessionType, &collectorTstamp); err != nil {
			return nil, fmt.Errorf("source: scan raw event: %w", err)
		}
		ev.Action = model.Action(action)

		t, err := model.ParseTimestamp(tstamp)
		if err != nil {
			return nil, fmt.Errorf("source: parsing tstamp: %w", err)
		}
		ev.Tstamp = t

		ct, err := model.ParseTimestamp(collectorTstamp)
		if err != nil {
			return nil, fmt.Errorf("source: parsing collector_tstamp: %w", err)
		}
		ev.CollectorTstamp = ct

		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source: select new events: %w", err)
	}
	return out, nil
}
