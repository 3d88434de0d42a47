package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/internal/store"
	"github.com/hcilog/hcilog/internal/tracker"
	"github.com/hcilog/hcilog/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hcilog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBufferConfig() config.BufferConfig {
	return config.BufferConfig{
		BatchSize:     50,
		FlushInterval: 10 * time.Millisecond,
		RetryBackoff:  time.Millisecond,
	}
}

func gazeTracker(st *store.Store, readings ...capture.GazeReading) *tracker.Gaze {
	return tracker.NewGaze(
		config.GazeConfig{Enabled: true, SampleRate: 30},
		testBufferConfig(),
		capture.NewReplayImmediate(readings...),
		st.AppendGazeBatch,
	)
}

func TestCoordinatorRecordsSession(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	g := gazeTracker(st,
		capture.GazeReading{GazeX: 0.1, GazeY: 0.2, LeftEyeOpen: true, RightEyeOpen: true},
		capture.GazeReading{GazeX: 0.3, GazeY: 0.4, LeftEyeOpen: true, RightEyeOpen: true},
	)
	coord := NewCoordinator(st, g)

	sess, err := coord.Begin(ctx, types.SessionMeta{ParticipantID: "P01", ScreenWidth: 1920, ScreenHeight: 1080})
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, sess.Status)
	assert.Empty(t, coord.Degraded())
	assert.Equal(t, tracker.StateRunning, coord.Status()["gaze"])

	require.Eventually(t, func() bool { return coord.Counts()["gaze"] == 2 },
		time.Second, time.Millisecond)

	final, err := coord.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, final.Status)
	assert.Greater(t, final.EndTime, final.StartTime)

	rows, err := st.QueryGazeSamples(ctx, sess.ID, store.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCoordinatorDegradedTrackerStillCompletes(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	broken := tracker.NewPointer(
		config.PointerConfig{Enabled: true, MovementThreshold: 5},
		testBufferConfig(),
		capture.NewReplayImmediate[capture.PointerSample]().FailOpen(errors.New("no hook permission")),
		st.AppendPointerBatch,
	)
	healthy := gazeTracker(st, capture.GazeReading{GazeX: 0.5, GazeY: 0.5})
	coord := NewCoordinator(st, broken, healthy)

	sess, err := coord.Begin(ctx, types.SessionMeta{ParticipantID: "P02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pointer"}, coord.Degraded())
	assert.Contains(t, sess.Notes, "degraded trackers: pointer")
	assert.Equal(t, tracker.StateIdle, coord.Status()["pointer"])

	require.Eventually(t, func() bool { return coord.Counts()["gaze"] == 1 },
		time.Second, time.Millisecond)

	final, err := coord.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, final.Status)
	assert.Contains(t, final.Notes, "pointer")
}

func TestCoordinatorStorageFailureIsSessionFatal(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// The first batch lands; every later one fails as if the disk went
	// away mid-session.
	var delivered atomic.Int32
	sink := func(ctx context.Context, batch []types.GazeSample) error {
		if delivered.Add(1) > 1 {
			return hcierrors.NewStorageUnavailable("disk gone", errors.New("io error"))
		}
		return st.AppendGazeBatch(ctx, batch)
	}

	bufCfg := testBufferConfig()
	bufCfg.BatchSize = 1
	g := tracker.NewGaze(
		config.GazeConfig{Enabled: true, SampleRate: 30},
		bufCfg,
		capture.NewReplayImmediate(
			capture.GazeReading{GazeX: 0.1},
			capture.GazeReading{GazeX: 0.2},
			capture.GazeReading{GazeX: 0.3},
		),
		sink,
	)
	coord := NewCoordinator(st, g)

	sess, err := coord.Begin(ctx, types.SessionMeta{ParticipantID: "P03"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return coord.Status()["gaze"] == tracker.StateErrored },
		time.Second, time.Millisecond)

	final, endErr := coord.End(ctx)
	require.Error(t, endErr)
	require.NotNil(t, final)
	assert.Equal(t, types.StatusError, final.Status)

	// Batches flushed before the failure survive.
	rows, err := st.QueryGazeSamples(ctx, sess.ID, store.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCoordinatorEndExactlyOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	coord := NewCoordinator(st, gazeTracker(st))
	_, err := coord.Begin(ctx, types.SessionMeta{})
	require.NoError(t, err)

	_, err = coord.End(ctx)
	require.NoError(t, err)
	assert.Nil(t, coord.Session())

	_, err = coord.End(ctx)
	require.Error(t, err)
	assert.Equal(t, hcierrors.CodeSessionClosed, hcierrors.GetCode(err))
}

func TestCoordinatorRejectsSecondBegin(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	coord := NewCoordinator(st, gazeTracker(st))
	_, err := coord.Begin(ctx, types.SessionMeta{})
	require.NoError(t, err)

	_, err = coord.Begin(ctx, types.SessionMeta{})
	require.Error(t, err)

	_, err = coord.End(ctx)
	require.NoError(t, err)
}

func TestClockMonotone(t *testing.T) {
	c := NewClock()
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	assert.Greater(t, b, a)
	assert.False(t, c.Epoch().IsZero())
}
