package driver_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vibeus/cros-session-deriver/internal/driver"
	"github.com/vibeus/cros-session-deriver/internal/index"
	"github.com/vibeus/cros-session-deriver/internal/metrics"
	"github.com/vibeus/cros-session-deriver/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeStore is an in-memory PendingStore used to observe exactly which
// mutations the driver issues without a real database.
type fakeStore struct {
	rows        map[string]*model.PendingSession
	updateCalls []string
	insertCalls []string
	deleteCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*model.PendingSession)}
}

func (f *fakeStore) Exists(_ context.Context, serial string) (bool, error) {
	_, ok := f.rows[serial]
	return ok, nil
}

func (f *fakeStore) Insert(_ context.Context, p *model.PendingSession) error {
	f.rows[p.Serial] = p.Clone()
	f.insertCalls = append(f.insertCalls, p.Serial)
	return nil
}

func (f *fakeStore) Update(_ context.Context, p *model.PendingSession) error {
	f.rows[p.Serial] = p.Clone()
	f.updateCalls = append(f.updateCalls, p.Serial)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, serial string) error {
	delete(f.rows, serial)
	f.deleteCalls = append(f.deleteCalls, serial)
	return nil
}

type fakeSink struct {
	rows []model.DerivedSession
}

func (f *fakeSink) Append(_ context.Context, row model.DerivedSession) error {
	f.rows = append(f.rows, row)
	return nil
}

type fakeSource struct {
	events []model.RawEvent
}

func (f *fakeSource) SelectNewEvents(_ context.Context, _ string) ([]model.RawEvent, error) {
	return f.events, nil
}

func ts(minute int) time.Time {
	return time.Date(2026, 7, 30, 10, minute, 0, 0, time.UTC)
}

func ev(serial, sessionID string, action model.Action, minute int) model.RawEvent {
	return model.RawEvent{
		Serial:          serial,
		UserID:          "user-1",
		Action:          action,
		Tstamp:          ts(minute),
		CollectorTstamp: ts(minute),
		SessionID:       sessionID,
		SessionType:     "managed_guest",
	}
}

func newDriver(t *testing.T, events []model.RawEvent) (*driver.Driver, *fakeStore, *fakeSink) {
	t.Helper()
	idx, err := index.Load(context.Background(), &loaderStub{})
	require.NoError(t, err)

	pstore := newFakeStore()
	sink := &fakeSink{}
	source := &fakeSource{events: events}
	reg := metrics.New()
	d := driver.New(idx, pstore, sink, source, reg, zerolog.Nop())
	return d, pstore, sink
}

type loaderStub struct{}

func (loaderStub) LoadAll(_ context.Context) ([]*model.PendingSession, error) { return nil, nil }

// Scenario 1: a single raw session watches video then exits. Expect a
// SessionStart at the first activity-start event and a SessionEnd at the
// trailing boundary, and the pending row both inserted and finally deleted.
func TestDriver_SingleRawSession_WatchThenExit(t *testing.T) {
	events := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
		ev("S1", "raw-1", model.ActionVideoEnd, 5),
		ev("S1", "raw-1", model.ActionExitSession, 6),
	}
	d, pstore, sink := newDriver(t, events)

	state, err := d.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, model.FormatTimestamp(ts(6)), state.MaxRawEventReceivingTime)

	require.Len(t, sink.rows, 2)
	require.Equal(t, model.DerivedSessionStart, sink.rows[0].Action)
	require.Equal(t, model.DerivedSessionEnd, sink.rows[1].Action)
	require.Equal(t, "raw-1/1", sink.rows[0].SessionID)

	require.Contains(t, pstore.insertCalls, "S1")
	require.Contains(t, pstore.deleteCalls, "S1")
	_, stillPending := pstore.rows["S1"]
	require.False(t, stillPending)
}

// Scenario 2: Idle arrives, ending the active session with the 600s
// back-dated timestamp, then a fresh activity-start within the same raw
// session bumps split_counter and opens a new derived session.
func TestDriver_IdleThenResumeBumpsSplitCounter(t *testing.T) {
	events := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
		ev("S1", "raw-1", model.ActionVideoEnd, 1), // PLAYING_VIDEO -> WAIT_INPUT, Idle only seals from WAIT_INPUT
		ev("S1", "raw-1", model.ActionIdle, 10),     // t0+600s == 10 minutes
		ev("S1", "raw-1", model.ActionVideoStart, 20),
	}
	d, _, sink := newDriver(t, events)

	_, err := d.Run(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, sink.rows, 3)
	require.Equal(t, model.DerivedSessionStart, sink.rows[0].Action)
	require.Equal(t, "raw-1/1", sink.rows[0].SessionID)

	require.Equal(t, model.DerivedSessionEnd, sink.rows[1].Action)
	require.Equal(t, "raw-1/1", sink.rows[1].SessionID)
	require.True(t, sink.rows[1].Tstamp.Equal(ts(0)),
		"Idle back-dates to IdleTime before the Idle event (ts(10) - 600s = ts(0)): got %v", sink.rows[1].Tstamp)

	require.Equal(t, model.DerivedSessionStart, sink.rows[2].Action)
	require.Equal(t, "raw-1/2", sink.rows[2].SessionID)
}

// Scenario 3: the same serial reappears under a different raw session while
// its pending session is REAL_IDLE. The stale pending row is dropped
// silently (no SessionEnd emitted) before the new raw session is initiated.
func TestDriver_SerialReuseWhileIdleDropsSilently(t *testing.T) {
	events := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
		ev("S1", "raw-1", model.ActionVideoEnd, 1),
		ev("S1", "raw-1", model.ActionIdle, 10), // seals S1 into REAL_IDLE
		ev("S2", "raw-x", model.ActionVideoStart, 11), // switch away from S1
		ev("S1", "raw-2", model.ActionVideoStart, 12), // S1 reappears under a new raw session
	}
	d, pstore, sink := newDriver(t, events)

	_, err := d.Run(context.Background(), "")
	require.NoError(t, err)

	var s1Actions []model.DerivedAction
	for _, row := range sink.rows {
		if row.Serial == "S1" {
			s1Actions = append(s1Actions, row.Action)
		}
	}
	require.Equal(t, []model.DerivedAction{model.DerivedSessionStart, model.DerivedSessionEnd, model.DerivedSessionStart},
		s1Actions, "REAL_IDLE drop must not itself emit a SessionEnd")

	require.Equal(t, "raw-2", pstore.rows["S1"].RawSessionID)
}

// Scenario 4: the same serial reappears under a different raw session while
// still active (not REAL_IDLE). The stale pending session is force-closed
// with a SessionEnd using its last known event time before the new raw
// session is initiated.
func TestDriver_SerialReuseWhileActiveForceCloses(t *testing.T) {
	events := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
		ev("S2", "raw-x", model.ActionVideoStart, 1),
		ev("S1", "raw-2", model.ActionAudioStart, 2), // raw-1 never saw a boundary
	}
	d, pstore, sink := newDriver(t, events)

	_, err := d.Run(context.Background(), "")
	require.NoError(t, err)

	var s1Rows []model.DerivedSession
	for _, row := range sink.rows {
		if row.Serial == "S1" {
			s1Rows = append(s1Rows, row)
		}
	}
	require.Len(t, s1Rows, 3) // raw-1 SessionStart, forced raw-1 SessionEnd, raw-2 SessionStart
	require.Equal(t, model.DerivedSessionEnd, s1Rows[1].Action)
	require.Equal(t, "raw-1/1", s1Rows[1].SessionID)
	require.True(t, s1Rows[1].Tstamp.Equal(ts(0)),
		"force-close must use the stale session's own last_event_time, not the new event's")

	require.Equal(t, model.DerivedSessionStart, s1Rows[2].Action)
	require.Equal(t, "raw-2/1", s1Rows[2].SessionID)
	require.Equal(t, "raw-2", pstore.rows["S1"].RawSessionID)
}

// Scenario 5: an AutoEndSession arrives, is dispatched, the pending session
// is deleted, and a subsequent boundary-class event (ExitSession, a
// legitimate race) for the same now-absent serial is dropped without error.
func TestDriver_BoundaryRaceAfterAutoEndIsHarmless(t *testing.T) {
	events := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
		ev("S1", "raw-1", model.ActionAutoEndSession, 5),
		ev("S1", "raw-1", model.ActionExitSession, 5),
	}
	d, pstore, sink := newDriver(t, events)

	_, err := d.Run(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, sink.rows, 2)
	require.Equal(t, model.DerivedSessionEnd, sink.rows[1].Action)
	_, stillPending := pstore.rows["S1"]
	require.False(t, stillPending)
}

// Scenario 6 / invariant: a second incremental run, started from the first
// run's bookmark and handed the first run's State Index, closes the session
// the first run opened, and the second run's bookmark never regresses.
func TestDriver_BookmarkResumeAcrossRuns(t *testing.T) {
	firstBatch := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
	}
	idx, err := index.Load(context.Background(), &loaderStub{})
	require.NoError(t, err)
	pstore := newFakeStore()
	sink := &fakeSink{}
	reg := metrics.New()

	d1 := driver.New(idx, pstore, sink, &fakeSource{events: firstBatch}, reg, zerolog.Nop())
	state1, err := d1.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, model.FormatTimestamp(ts(0)), state1.MaxRawEventReceivingTime)

	secondBatch := []model.RawEvent{
		ev("S1", "raw-1", model.ActionExitSession, 6),
	}
	d2 := driver.New(idx, pstore, sink, &fakeSource{events: secondBatch}, reg, zerolog.Nop())
	state2, err := d2.Run(context.Background(), state1.MaxRawEventReceivingTime)
	require.NoError(t, err)
	require.Greater(t, state2.MaxRawEventReceivingTime, state1.MaxRawEventReceivingTime)

	require.Len(t, sink.rows, 2)
	require.Empty(t, cmp.Diff(model.DerivedSessionStart, sink.rows[0].Action))
	require.Equal(t, model.DerivedSessionEnd, sink.rows[1].Action)
}

// Invariant: plain field updates within one uninterrupted raw session are
// flushed exactly once (at end of stream / next boundary), never once per
// event.
func TestDriver_FlushOnlyAtBoundaryNotPerEvent(t *testing.T) {
	events := []model.RawEvent{
		ev("S1", "raw-1", model.ActionVideoStart, 0),
		ev("S1", "raw-1", model.ActionVideoEnd, 1),
		ev("S1", "raw-1", model.ActionVideoStart, 2),
	}
	d, pstore, _ := newDriver(t, events)

	_, err := d.Run(context.Background(), "")
	require.NoError(t, err)

	require.Equal(t, []string{"S1"}, pstore.updateCalls,
		"mid-stream updates to S1 must not be flushed individually, only once at end of stream")
}
