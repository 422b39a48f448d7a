package sm

import "github.com/vibeus/cros-session-deriver/internal/model"

// EventKind is the event shape the state machine dispatches on: one of the
// five classes an incoming RawEvent.Action falls into (spec §4.2).
type EventKind = model.Class

const (
	EvBoundary      = model.ClassBoundary
	EvIdle          = model.ClassIdle
	EvActivityStart = model.ClassActivityStart
	EvActivityEnd   = model.ClassActivityEnd
	EvGeneric       = model.ClassGeneric
)
