package model

import "time"

// RawEvent is an immutable telemetry action event as read from the Event
// Source. See spec §3 "Raw event".
type RawEvent struct {
	Serial          string
	UserID          string
	Action          Action
	Tstamp          time.Time
	CollectorTstamp time.Time
	SessionID       string
	SessionType     string
}

// Class reports which of the five dispatch shapes this event's Action falls
// into (boundary, idle, activity start/end, or generic interaction).
func (e RawEvent) Class() Class {
	return Classify(e.Action)
}
