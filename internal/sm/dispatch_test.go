package sm_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vibeus/cros-session-deriver/internal/model"
	"github.com/vibeus/cros-session-deriver/internal/sm"
)

func t0() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func evAt(serial, sessionID string, action model.Action, offset time.Duration) model.RawEvent {
	ts := t0().Add(offset)
	return model.RawEvent{
		Serial:          serial,
		UserID:          "u1",
		Action:          action,
		Tstamp:          ts,
		CollectorTstamp: ts,
		SessionID:       sessionID,
		SessionType:     "kiosk",
	}
}

func newPending(serial, raw string, state model.LastState, offset time.Duration, split int) *model.PendingSession {
	return &model.PendingSession{
		Serial:        serial,
		UserID:        "u1",
		RawSessionID:  raw,
		StartTime:     t0(),
		LastEventTime: t0().Add(offset),
		SessionType:   "kiosk",
		LastState:     state,
		SplitCounter:  split,
	}
}

// scenario 1: simple watch-then-exit.
func TestDispatch_SimpleWatchThenExit(t *testing.T) {
	p := newPending("S1", "R1", model.StateRealIdle, 0, 0)

	res, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionVideoStart, 0))
	require.NoError(t, err)
	require.False(t, res.Deleted)
	require.Equal(t, 1, p.SplitCounter)
	require.Equal(t, model.StatePlayingVideo, p.LastState)
	want := []model.DerivedSession{{Serial: "S1", UserID: "u1", SessionID: "R1/1", Tstamp: t0(), SessionType: "kiosk", Action: model.DerivedSessionStart}}
	if diff := cmp.Diff(want, res.Emitted); diff != "" {
		t.Fatalf("VideoStart emit mismatch (-want +got):\n%s", diff)
	}

	res, err = sm.Dispatch(p, evAt("S1", "R1", model.ActionVideoEnd, 60*time.Second))
	require.NoError(t, err)
	require.False(t, res.Deleted)
	require.Empty(t, res.Emitted)
	require.Equal(t, model.StateWaitInput, p.LastState)

	res, err = sm.Dispatch(p, evAt("S1", "R1", model.ActionExitSession, 120*time.Second))
	require.NoError(t, err)
	require.True(t, res.Deleted)
	want = []model.DerivedSession{{Serial: "S1", UserID: "u1", SessionID: "R1/1", Tstamp: t0().Add(60 * time.Second), SessionType: "kiosk", Action: model.DerivedSessionEnd}}
	if diff := cmp.Diff(want, res.Emitted); diff != "" {
		t.Fatalf("ExitSession emit mismatch (-want +got):\n%s", diff)
	}
}

// scenario 2: idle then resume within the same raw session.
func TestDispatch_IdleThenResume(t *testing.T) {
	p := newPending("S1", "R1", model.StateRealIdle, 0, 0)

	_, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionVideoStart, 0))
	require.NoError(t, err)
	_, err = sm.Dispatch(p, evAt("S1", "R1", model.ActionVideoEnd, 30*time.Second))
	require.NoError(t, err)

	res, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionIdle, 630*time.Second))
	require.NoError(t, err)
	require.False(t, res.Deleted)
	require.Equal(t, model.StateRealIdle, p.LastState)
	require.Equal(t, t0().Add(30*time.Second), p.LastEventTime)
	want := []model.DerivedSession{{Serial: "S1", UserID: "u1", SessionID: "R1/1", Tstamp: t0().Add(30 * time.Second), SessionType: "kiosk", Action: model.DerivedSessionEnd}}
	if diff := cmp.Diff(want, res.Emitted); diff != "" {
		t.Fatalf("Idle emit mismatch (-want +got):\n%s", diff)
	}

	res, err = sm.Dispatch(p, evAt("S1", "R1", model.ActionVideoStart, 900*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, p.SplitCounter)
	want = []model.DerivedSession{{Serial: "S1", UserID: "u1", SessionID: "R1/2", Tstamp: t0().Add(900 * time.Second), SessionType: "kiosk", Action: model.DerivedSessionStart}}
	if diff := cmp.Diff(want, res.Emitted); diff != "" {
		t.Fatalf("resume emit mismatch (-want +got):\n%s", diff)
	}

	res, err = sm.Dispatch(p, evAt("S1", "R1", model.ActionExitSession, 1200*time.Second))
	require.NoError(t, err)
	require.True(t, res.Deleted)
	// A boundary emits with the pending session's current last_event_time
	// (the 900s VideoStart), not the ExitSession's own timestamp.
	want = []model.DerivedSession{{Serial: "S1", UserID: "u1", SessionID: "R1/2", Tstamp: t0().Add(900 * time.Second), SessionType: "kiosk", Action: model.DerivedSessionEnd}}
	if diff := cmp.Diff(want, res.Emitted); diff != "" {
		t.Fatalf("final ExitSession emit mismatch (-want +got):\n%s", diff)
	}
}

// scenario 5: AutoEndSession followed by ExitSession at the same timestamp.
func TestDispatch_AutoEndThenExit(t *testing.T) {
	p := newPending("S1", "R1", model.StateWaitInput, 60*time.Second, 1)

	res, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionAutoEndSession, 120*time.Second))
	require.NoError(t, err)
	require.True(t, res.Deleted)
	require.Len(t, res.Emitted, 1)
	require.Equal(t, model.DerivedSessionEnd, res.Emitted[0].Action)

	// Caller removes p from the index on Deleted; the trailing ExitSession
	// dispatches against an absent pending session.
	res, err = sm.Dispatch(nil, evAt("S1", "R1", model.ActionExitSession, 120*time.Second))
	require.NoError(t, err)
	require.False(t, res.Deleted)
	require.Empty(t, res.Emitted)
}

func TestDispatch_NoPendingNonBoundaryIsUnreachable(t *testing.T) {
	_, err := sm.Dispatch(nil, evAt("S1", "R1", model.ActionVideoStart, 0))
	require.Error(t, err)
	var smErr *sm.Error
	require.ErrorAs(t, err, &smErr)
	require.Equal(t, sm.KindUnreachableTransition, smErr.Kind())
}

func TestDispatch_RealIdleIdleIsNoOp(t *testing.T) {
	p := newPending("S1", "R1", model.StateRealIdle, 0, 0)
	res, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionIdle, 5*time.Second))
	require.NoError(t, err)
	require.False(t, res.Deleted)
	require.Empty(t, res.Emitted)
	require.Equal(t, t0(), p.LastEventTime)
}

func TestDispatch_RealIdleBoundaryDropsWithoutEmit(t *testing.T) {
	p := newPending("S1", "R1", model.StateRealIdle, 0, 2)
	res, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionExitSession, 5*time.Second))
	require.NoError(t, err)
	require.True(t, res.Deleted)
	require.Empty(t, res.Emitted)
}

func TestDispatch_PlayingVideoIdleDoesNotEnd(t *testing.T) {
	p := newPending("S1", "R1", model.StatePlayingVideo, 0, 1)
	res, err := sm.Dispatch(p, evAt("S1", "R1", model.ActionIdle, 10*time.Second))
	require.NoError(t, err)
	require.False(t, res.Deleted)
	require.Empty(t, res.Emitted)
	require.Equal(t, model.StatePlayingVideo, p.LastState)
	require.Equal(t, t0().Add(10*time.Second), p.LastEventTime)
}
