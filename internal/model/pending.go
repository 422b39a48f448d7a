package model

import (
	"fmt"
	"time"
)

// LastState is the device-level activity state carried by a PendingSession.
type LastState string

const (
	StateRealIdle     LastState = "REAL_IDLE"
	StatePlayingVideo LastState = "PLAYING_VIDEO"
	StateWaitInput    LastState = "WAIT_INPUT"
)

// InitialStateFor classifies the action that opens a fresh raw session into
// the starting last_state, per the Batch Driver's Initiate procedure (spec
// §4.3). Idle opens REAL_IDLE; VideoStart/AudioStart open PLAYING_VIDEO;
// anything else (activity-end or generic) opens WAIT_INPUT.
func InitialStateFor(a Action) LastState {
	switch Classify(a) {
	case ClassIdle:
		return StateRealIdle
	case ClassActivityStart:
		return StatePlayingVideo
	default:
		return StateWaitInput
	}
}

// PendingSession is the per-device state carrying a currently-open derived
// session across batch runs. At most one exists per serial (spec §3).
type PendingSession struct {
	Serial        string
	UserID        string
	RawSessionID  string
	StartTime     time.Time
	LastEventTime time.Time
	SessionType   string
	LastState     LastState
	SplitCounter  int
}

// SessionID returns the composite identifier used on emitted derived rows:
// "<raw_session_id>/<split_counter>".
func (p *PendingSession) SessionID() string {
	return fmt.Sprintf("%s/%d", p.RawSessionID, p.SplitCounter)
}

// Clone returns a shallow copy so callers can hand out a snapshot without
// risking aliasing into the State Index's live entry.
func (p *PendingSession) Clone() *PendingSession {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
