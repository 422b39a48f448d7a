package sm

import (
	"time"

	"github.com/vibeus/cros-session-deriver/internal/model"
)

// IdleTime is the fixed trailing window subtracted from an Idle event's
// timestamp when sealing a derived session into REAL_IDLE (spec §4.2, §6).
const IdleTime = 600 * time.Second

// effect describes what happens to a pending session on one (LastState,
// EventKind) cell of the transition table (spec §4.2): whether to update
// last_event_time (and whether to back-date it by IdleTime), whether to bump
// split_counter, which state to move to, what to emit, and whether to
// delete the pending session outright.
type effect struct {
	noOp       bool
	updateTime bool
	backDate   bool
	bump       bool
	newState   model.LastState
	emit       *model.DerivedAction
	del        bool
}

func start() *model.DerivedAction { a := model.DerivedSessionStart; return &a }
func end() *model.DerivedAction   { a := model.DerivedSessionEnd; return &a }

// transitionsTable is the full table from spec §4.2. Unlike the teacher's
// protocol state machine, every (state, event) cell here is legal — there is
// no forbidden-transition lookup to keep separate, so decision and
// transition collapse into one table.
var transitionsTable = map[model.LastState]map[EventKind]effect{
	model.StateRealIdle: {
		EvBoundary:      {del: true},
		EvIdle:          {noOp: true},
		EvActivityStart: {updateTime: true, bump: true, newState: model.StatePlayingVideo, emit: start()},
		EvActivityEnd:   {updateTime: true, bump: true, newState: model.StateWaitInput, emit: start()},
		EvGeneric:       {updateTime: true, bump: true, newState: model.StateWaitInput, emit: start()},
	},
	model.StatePlayingVideo: {
		EvBoundary:      {emit: end(), del: true},
		EvIdle:          {updateTime: true, newState: model.StatePlayingVideo},
		EvActivityStart: {updateTime: true, newState: model.StatePlayingVideo},
		EvActivityEnd:   {updateTime: true, newState: model.StateWaitInput},
		EvGeneric:       {updateTime: true, newState: model.StatePlayingVideo},
	},
	model.StateWaitInput: {
		EvBoundary:      {emit: end(), del: true},
		EvIdle:          {updateTime: true, backDate: true, newState: model.StateRealIdle, emit: end()},
		EvActivityStart: {updateTime: true, newState: model.StatePlayingVideo},
		EvActivityEnd:   {updateTime: true, newState: model.StateWaitInput},
		EvGeneric:       {updateTime: true, newState: model.StateWaitInput},
	},
}

func lookupEffect(state model.LastState, ev EventKind) (effect, bool) {
	row, ok := transitionsTable[state]
	if !ok {
		return effect{}, false
	}
	e, ok := row[ev]
	return e, ok
}
