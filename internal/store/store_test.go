package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hcilog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestSession(t *testing.T, s *Store) *types.Session {
	t.Helper()
	sess, err := s.CreateSession(context.Background(), types.SessionMeta{
		ParticipantID: "P01",
		ExperimentID:  "EXP-01",
		TargetURL:     "https://example.org/task",
		ScreenWidth:   1920,
		ScreenHeight:  1080,
	})
	require.NoError(t, err)
	return sess
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := createTestSession(t, s)
	assert.NotZero(t, sess.ID)
	assert.NotEmpty(t, sess.UUID)
	assert.Equal(t, types.StatusActive, sess.Status)
	assert.Zero(t, sess.EndTime)

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UUID, got.UUID)
	assert.Equal(t, "P01", got.ParticipantID)
	assert.Equal(t, 1920, got.ScreenWidth)

	byUUID, err := s.GetSessionByUUID(ctx, sess.UUID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, byUUID.ID)
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession(context.Background(), 9999)
	require.Error(t, err)
	assert.Equal(t, hcierrors.CodeSessionNotFound, hcierrors.GetCode(err))
}

func TestEndSessionExactlyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	require.NoError(t, s.EndSession(ctx, sess.ID, sess.StartTime+12.5, types.StatusCompleted))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.InDelta(t, sess.StartTime+12.5, got.EndTime, 1e-9)

	// Second end must not overwrite the first.
	err = s.EndSession(ctx, sess.ID, sess.StartTime+99, types.StatusError)
	require.Error(t, err)
	assert.True(t, hcierrors.IsConstraintViolation(err))

	again, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, again.Status)
	assert.InDelta(t, sess.StartTime+12.5, again.EndTime, 1e-9)
}

func TestEndSessionRejectsNonTerminalStatus(t *testing.T) {
	s := openTestStore(t)
	sess := createTestSession(t, s)

	err := s.EndSession(context.Background(), sess.ID, sess.StartTime+1, types.StatusActive)
	require.Error(t, err)
	assert.True(t, hcierrors.IsConstraintViolation(err))
}

func TestAppendPointerBatchAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	pressed := true
	dx, dy := 0.0, -120.0
	events := []types.PointerEvent{
		{SessionID: sess.ID, Timestamp: 0.1, Type: types.PointerMove, X: 10, Y: 20},
		{SessionID: sess.ID, Timestamp: 0.2, Type: types.PointerClick, X: 10, Y: 20, Button: "left", Pressed: &pressed},
		{SessionID: sess.ID, Timestamp: 0.3, Type: types.PointerScroll, X: 12, Y: 22, ScrollDX: &dx, ScrollDY: &dy},
	}
	require.NoError(t, s.AppendPointerBatch(ctx, events))

	got, err := s.QueryPointerEvents(ctx, sess.ID, "", TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.PointerMove, got[0].Type)
	assert.Equal(t, "left", got[1].Button)
	require.NotNil(t, got[1].Pressed)
	assert.True(t, *got[1].Pressed)
	require.NotNil(t, got[2].ScrollDY)
	assert.Equal(t, -120.0, *got[2].ScrollDY)

	clicks, err := s.QueryPointerEvents(ctx, sess.ID, types.PointerClick, TimeRange{})
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, 0.2, clicks[0].Timestamp)
}

func TestAppendPointerBatchRollsBackOnConstraint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	events := []types.PointerEvent{
		{SessionID: sess.ID, Timestamp: 0.1, Type: types.PointerMove, X: 1, Y: 1},
		{SessionID: 424242, Timestamp: 0.2, Type: types.PointerMove, X: 2, Y: 2}, // no such session
	}
	err := s.AppendPointerBatch(ctx, events)
	require.Error(t, err)
	assert.True(t, hcierrors.IsConstraintViolation(err))

	// The whole batch must have rolled back, including the valid row.
	got, err := s.QueryPointerEvents(ctx, sess.ID, "", TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScreenshotTriggerMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	tx, ty := 640, 360
	events := []types.ScreenshotEvent{
		{
			SessionID: sess.ID, Timestamp: 1.5,
			FilePath: "screenshots/000001.png", FileSize: 20480,
			Width: 1920, Height: 1080, Format: "png",
			TriggerType: types.TriggerClick, TriggerX: &tx, TriggerY: &ty,
			TriggerMeta: map[string]interface{}{"button": "left", "scroll_accum": 0.0},
		},
		{
			SessionID: sess.ID, Timestamp: 6.5,
			FilePath: "screenshots/000002.png", FileSize: 19344,
			Width: 1920, Height: 1080, Format: "png",
			TriggerType: types.TriggerPeriodic,
		},
	}
	require.NoError(t, s.AppendScreenshotBatch(ctx, events))

	got, err := s.QueryScreenshots(ctx, sess.ID, TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "left", got[0].TriggerMeta["button"])
	require.NotNil(t, got[0].TriggerX)
	assert.Equal(t, 640, *got[0].TriggerX)
	assert.Nil(t, got[1].TriggerMeta)
	assert.Equal(t, types.TriggerPeriodic, got[1].TriggerType)
}

func TestAppendEmotionBatchClampsAtBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	samples := []types.EmotionSample{
		{SessionID: sess.ID, Timestamp: 0.5, Happy: 1.7, Sad: -0.3, FaceConfidence: 0.9},
		{SessionID: sess.ID, Timestamp: 1.0, Happy: 0.4, FaceConfidence: 0},
	}
	require.NoError(t, s.AppendEmotionBatch(ctx, samples))

	got, err := s.QueryEmotionSamples(ctx, sess.ID, TimeRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Happy)
	assert.Equal(t, 0.0, got[0].Sad)
	assert.Equal(t, "happy", got[0].DominantEmotion)
	assert.Equal(t, types.DominantUndetermined, got[1].DominantEmotion)
}

func TestTimeRangeFiltering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	var events []types.PointerEvent
	for i := 0; i < 10; i++ {
		events = append(events, types.PointerEvent{
			SessionID: sess.ID, Timestamp: float64(i), Type: types.PointerMove, X: i, Y: i,
		})
	}
	require.NoError(t, s.AppendPointerBatch(ctx, events))

	got, err := s.QueryPointerEvents(ctx, sess.ID, "", TimeRange{Start: 3, End: 6})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 3.0, got[0].Timestamp)
	assert.Equal(t, 6.0, got[len(got)-1].Timestamp)
}

func TestConcurrentAppendsFromTwoStreams(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	// Two producers flushing interleaved batches must land every row:
	// the single write connection serializes the transactions.
	var wg sync.WaitGroup
	wg.Add(2)
	errs := make(chan error, 2)

	go func() {
		defer wg.Done()
		for b := 0; b < 5; b++ {
			batch := make([]types.PointerEvent, 10)
			for i := range batch {
				batch[i] = types.PointerEvent{
					SessionID: sess.ID, Timestamp: float64(b*10 + i),
					Type: types.PointerMove, X: i, Y: i,
				}
			}
			if err := s.AppendPointerBatch(ctx, batch); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for b := 0; b < 5; b++ {
			batch := make([]types.GazeSample, 10)
			for i := range batch {
				batch[i] = types.GazeSample{
					SessionID: sess.ID, Timestamp: float64(b*10 + i),
					GazeX: 0.5, GazeY: 0.5, LeftEyeOpen: true, RightEyeOpen: true,
				}
			}
			if err := s.AppendGazeBatch(ctx, batch); err != nil {
				errs <- err
				return
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts, err := s.CountStreams(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), counts.PointerEvents)
	assert.Equal(t, int64(50), counts.GazeSamples)
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateSession(ctx, types.SessionMeta{
			ParticipantID: fmt.Sprintf("P%02d", i),
		})
		require.NoError(t, err)
	}

	all, err := s.ListSessions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	one, err := s.ListSessions(ctx, "P01", 0)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "P01", one[0].ParticipantID)

	limited, err := s.ListSessions(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteSessionCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	require.NoError(t, s.AppendPointerBatch(ctx, []types.PointerEvent{
		{SessionID: sess.ID, Timestamp: 0.1, Type: types.PointerMove, X: 1, Y: 1},
	}))
	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	_, err := s.GetSession(ctx, sess.ID)
	require.Error(t, err)

	got, err := s.QueryPointerEvents(ctx, sess.ID, "", TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAudioAndTranscriptionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess := createTestSession(t, s)

	require.NoError(t, s.AppendAudioBatch(ctx, []types.AudioSegment{
		{
			SessionID: sess.ID, StartTimestamp: 0, EndTimestamp: 30, Duration: 30,
			FilePath: "audio/segment_000.wav", SampleRate: 44100, Channels: 1, FileSize: 2646000,
		},
	}))
	require.NoError(t, s.AppendTranscriptionBatch(ctx, []types.TranscriptionSegment{
		{SessionID: sess.ID, Timestamp: 0, Text: "participant reads the task aloud", AudioFile: "audio/segment_000.wav"},
	}))

	segs, err := s.QueryAudioSegments(ctx, sess.ID, TimeRange{})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 30.0, segs[0].Duration)

	trs, err := s.QueryTranscriptions(ctx, sess.ID, TimeRange{})
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, "audio/segment_000.wav", trs[0].AudioFile)
}
