// Package sm implements the per-device session state machine from spec §4.2:
// a function from (pending session, incoming event) to (updated pending
// session, emitted rows, deletion). It updates the pending session it is
// given in place. It holds no I/O and no notion of "now" — every timestamp
// it produces is derived from event.Tstamp.
package sm

import "github.com/vibeus/cros-session-deriver/internal/model"

// Result is the outcome of dispatching one event against one pending
// session. When Deleted is true the caller must remove the pending session
// from the State Index and the Pending-Session Store. Otherwise Pending is
// the same pointer passed in, mutated in place, and the caller's existing
// reference remains valid.
type Result struct {
	Pending *model.PendingSession
	Deleted bool
	Emitted []model.DerivedSession
}

// Dispatch is the state machine's single entry point. p may be nil, modeling
// "no pending session for this serial" (spec §4.2's "No pending session,
// incoming event" branch): a boundary event is dropped silently (the
// legitimate AutoEndSession/ExitSession race, scenario 5); anything else is
// unreachable within a single raw session and a hard error, since the Batch
// Driver's Initiate procedure is responsible for creating a pending session
// before any non-boundary event can reach here.
func Dispatch(p *model.PendingSession, ev model.RawEvent) (Result, error) {
	if p == nil {
		if ev.Class() == EvBoundary {
			return Result{}, nil
		}
		return illegalTransition("<none>", ev.Class())
	}

	eff, ok := lookupEffect(p.LastState, ev.Class())
	if !ok {
		return illegalTransition(p.LastState, ev.Class())
	}

	if eff.noOp {
		return Result{Pending: p}, nil
	}

	if eff.updateTime {
		t := ev.Tstamp
		if eff.backDate {
			t = t.Add(-IdleTime)
		}
		p.LastEventTime = t
	}
	if eff.bump {
		p.SplitCounter++
	}
	if !eff.del {
		p.LastState = eff.newState
	}

	var emitted []model.DerivedSession
	if eff.emit != nil {
		emitted = append(emitted, model.Emit(p, *eff.emit))
	}

	if eff.del {
		return Result{Deleted: true, Emitted: emitted}, nil
	}
	return Result{Pending: p, Emitted: emitted}, nil
}
