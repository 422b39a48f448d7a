package model

import "time"

// DerivedAction is the action carried on an emitted derived session row.
type DerivedAction string

const (
	DerivedSessionStart DerivedAction = "SessionStart"
	DerivedSessionEnd   DerivedAction = "SessionEnd"
)

// DerivedSession is a single append-only output row (spec §3, §4.5).
type DerivedSession struct {
	Serial      string
	UserID      string
	SessionID   string // "<raw_session_id>/<split_counter>"
	Tstamp      time.Time
	SessionType string
	Action      DerivedAction
}

// Emit builds the derived row for p at the moment of emission, using p's
// current fields (including any ++split already applied by the caller).
func Emit(p *PendingSession, action DerivedAction) DerivedSession {
	return DerivedSession{
		Serial:      p.Serial,
		UserID:      p.UserID,
		SessionID:   p.SessionID(),
		Tstamp:      p.LastEventTime,
		SessionType: p.SessionType,
		Action:      action,
	}
}
