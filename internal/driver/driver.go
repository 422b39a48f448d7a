// Package driver implements the Batch Driver (spec §4.3): the incremental
// orchestrator that streams events, detects raw-session boundaries, invokes
// the Session State Machine, flushes pending-session updates at boundaries
// and end of stream, and advances the bookmark. It is single-threaded and
// sequential per spec §5 — there is no goroutine pool here, unlike the
// teacher's manager.Orchestrator, because the spec is explicit that this
// core has no parallelism.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibeus/cros-session-deriver/internal/index"
	"github.com/vibeus/cros-session-deriver/internal/log"
	"github.com/vibeus/cros-session-deriver/internal/metrics"
	"github.com/vibeus/cros-session-deriver/internal/model"
	"github.com/vibeus/cros-session-deriver/internal/sm"
)

// EventSource yields the ordered, filtered event stream (spec §4.1).
type EventSource interface {
	SelectNewEvents(ctx context.Context, bookmark string) ([]model.RawEvent, error)
}

// PendingStore is the subset of the Pending-Session Store the driver
// mutates directly (LoadAll is consumed separately by index.Load at
// startup).
type PendingStore interface {
	Exists(ctx context.Context, serial string) (bool, error)
	Insert(ctx context.Context, p *model.PendingSession) error
	Update(ctx context.Context, p *model.PendingSession) error
	Delete(ctx context.Context, serial string) error
}

// Sink is the Derived-Session Sink collaborator (spec §4.5).
type Sink interface {
	Append(ctx context.Context, row model.DerivedSession) error
}

// Driver is the Batch Driver. Construct one per run with New, then call Run
// once.
type Driver struct {
	idx     *index.Index
	pstore  PendingStore
	sink    Sink
	source  EventSource
	metrics *metrics.Registry
	log     zerolog.Logger
}

// New builds a Driver from its collaborators. idx should already be
// reconstructed via index.Load before the first call to Run.
func New(idx *index.Index, pstore PendingStore, sink Sink, source EventSource, reg *metrics.Registry, log zerolog.Logger) *Driver {
	return &Driver{idx: idx, pstore: pstore, sink: sink, source: source, metrics: reg, log: log}
}

// Run drives one incremental pass: read every event newer than bookmark,
// dispatch it through the state machine, flush pending-session updates at
// raw-session boundaries and at end of stream, and return the new bookmark
// as a ProcessorState ready to be persisted by the caller.
func (d *Driver) Run(ctx context.Context, bookmark string) (state model.ProcessorState, err error) {
	d.log = log.WithContext(ctx, d.log)

	start := time.Now()
	defer func() { d.metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()
	defer func() {
		if err != nil {
			kind := errorKind(err)
			d.metrics.HardErrors.WithLabelValues(kind).Inc()
			d.log.Error().Str(log.FieldKind, kind).Err(err).Msg("batch run aborted")
		}
	}()

	events, err := d.source.SelectNewEvents(ctx, bookmark)
	if err != nil {
		return model.ProcessorState{}, sm.New(sm.KindConnectionOrQuery, "selecting new events", err)
	}

	var lastEvent *model.RawEvent
	for i := range events {
		ev := events[i]

		switched := lastEvent == nil || ev.SessionID != lastEvent.SessionID
		if !switched {
			if err := d.applyExisting(ctx, ev); err != nil {
				return model.ProcessorState{}, err
			}
		} else {
			if lastEvent != nil {
				if err := d.flush(ctx, *lastEvent); err != nil {
					return model.ProcessorState{}, err
				}
			}
			if err := d.handleSwitch(ctx, ev); err != nil {
				return model.ProcessorState{}, err
			}
		}

		if formatted := model.FormatTimestamp(ev.CollectorTstamp); formatted > bookmark {
			bookmark = formatted
		}
		lastEvent = &ev
		d.metrics.EventsProcessed.Inc()
	}

	if lastEvent != nil {
		if err := d.flush(ctx, *lastEvent); err != nil {
			return model.ProcessorState{}, err
		}
	}

	d.metrics.PendingSessionGauge.Set(float64(d.idx.Len()))
	return model.ProcessorState{MaxRawEventReceivingTime: bookmark}, nil
}

// applyExisting dispatches ev against the serial's current pending session
// without touching the store directly: plain field updates stay in the
// State Index only, persisted later by flush; a deletion is applied to the
// store immediately (spec §4.3 step 2).
func (d *Driver) applyExisting(ctx context.Context, ev model.RawEvent) error {
	p := d.idx.Get(ev.Serial)
	before := 0
	if p != nil {
		before = p.SplitCounter
	}

	res, err := sm.Dispatch(p, ev)
	if err != nil {
		return err
	}
	if err := d.emitAll(ctx, res.Emitted); err != nil {
		return err
	}
	if res.Deleted {
		d.idx.Delete(ev.Serial)
		if err := d.pstore.Delete(ctx, ev.Serial); err != nil {
			return err
		}
		d.log.Debug().Str(log.FieldSerial, ev.Serial).Str(log.FieldRawSessionID, ev.SessionID).Msg("pending session deleted")
		return nil
	}
	if res.Pending != nil && res.Pending.SplitCounter > before {
		d.metrics.SplitBumps.Inc()
	}
	return nil
}

// handleSwitch implements spec §4.3 step 3(b-e): look up the pending
// session for the event's serial and either initiate a fresh one, continue
// the existing one (when this serial's own raw session did not change,
// despite last_event belonging to a different serial), or close out a prior
// raw session for this serial before initiating the new one.
func (d *Driver) handleSwitch(ctx context.Context, ev model.RawEvent) error {
	p := d.idx.Get(ev.Serial)
	if p == nil {
		return d.initiate(ctx, ev)
	}
	if p.RawSessionID == ev.SessionID {
		return d.applyExisting(ctx, ev)
	}

	if p.LastState != model.StateRealIdle {
		row := model.Emit(p, model.DerivedSessionEnd)
		if err := d.emitAll(ctx, []model.DerivedSession{row}); err != nil {
			return err
		}
	}
	d.idx.Delete(ev.Serial)
	if err := d.pstore.Delete(ctx, ev.Serial); err != nil {
		return err
	}
	d.log.Debug().Str(log.FieldSerial, ev.Serial).Str(log.FieldRawSessionID, p.RawSessionID).Msg("closed stale pending session before raw-session switch")
	return d.initiate(ctx, ev)
}

// initiate creates a new pending session for ev (spec §4.3 "Initiate").
func (d *Driver) initiate(ctx context.Context, ev model.RawEvent) error {
	if ev.Class() == model.ClassBoundary {
		return nil
	}

	exists, err := d.pstore.Exists(ctx, ev.Serial)
	if err != nil {
		return err
	}
	if exists {
		return sm.New(sm.KindStoreOutOfSync,
			fmt.Sprintf("serial %q already has a pending row in the store", ev.Serial), nil)
	}

	state := model.InitialStateFor(ev.Action)
	p := &model.PendingSession{
		Serial:        ev.Serial,
		UserID:        ev.UserID,
		RawSessionID:  ev.SessionID,
		StartTime:     ev.Tstamp,
		LastEventTime: ev.Tstamp,
		SessionType:   ev.SessionType,
		LastState:     state,
		SplitCounter:  1,
	}
	if err := d.pstore.Insert(ctx, p); err != nil {
		return err
	}
	d.idx.Put(p)

	d.log.Debug().
		Str(log.FieldSerial, ev.Serial).
		Str(log.FieldRawSessionID, ev.SessionID).
		Str(log.FieldEvent, string(ev.Action)).
		Msg("initiated pending session")

	if state != model.StateRealIdle {
		row := model.Emit(p, model.DerivedSessionStart)
		if err := d.emitAll(ctx, []model.DerivedSession{row}); err != nil {
			return err
		}
	}
	return nil
}

// flush implements spec §4.3 step 3(a)/"End of stream": persist the pending
// session for lastEvent.Serial, if any, via PendingStore.Update. It is a hard error if
// the pending session's raw_session_id disagrees with lastEvent.SessionID.
func (d *Driver) flush(ctx context.Context, lastEvent model.RawEvent) error {
	p := d.idx.Get(lastEvent.Serial)
	if p == nil {
		return nil
	}
	if p.RawSessionID != lastEvent.SessionID {
		return sm.New(sm.KindUnmatchedPendingSession,
			fmt.Sprintf("pending raw_session_id %q for serial %q disagrees with last event's %q",
				p.RawSessionID, lastEvent.Serial, lastEvent.SessionID), nil)
	}
	return d.pstore.Update(ctx, p)
}

func (d *Driver) emitAll(ctx context.Context, rows []model.DerivedSession) error {
	for _, row := range rows {
		if err := d.sink.Append(ctx, row); err != nil {
			return sm.New(sm.KindConnectionOrQuery, "appending derived session row", err)
		}
		d.metrics.SessionsEmitted.WithLabelValues(string(row.Action)).Inc()
	}
	return nil
}

// errorKind classifies err for the hard_errors_total label and the aborted-run
// log line. Errors never wrapped in an sm.Error (Pending-Session Store
// failures surfaced directly by the collaborator) fall back to KindUnknown;
// sink failures are wrapped by emitAll as KindConnectionOrQuery.
func errorKind(err error) string {
	var smErr *sm.Error
	if errors.As(err, &smErr) {
		return smErr.Kind().String()
	}
	return sm.KindUnknown.String()
}
