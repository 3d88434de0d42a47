package store

import (
	"context"
	"database/sql"
	"fmt"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// TimeRange filters a per-stream query to [Start, End] session-relative
// seconds. A zero End means unbounded.
type TimeRange struct {
	Start float64
	End   float64
}

func (r TimeRange) clause(col string) (string, []interface{}) {
	q := ""
	var args []interface{}
	if r.Start > 0 {
		q += fmt.Sprintf(" AND %s >= ?", col)
		args = append(args, r.Start)
	}
	if r.End > 0 {
		q += fmt.Sprintf(" AND %s <= ?", col)
		args = append(args, r.End)
	}
	return q, args
}

// QueryPointerEvents returns a session's pointer events ordered by
// timestamp. eventType filters to a single type when non-empty.
func (s *Store) QueryPointerEvents(ctx context.Context, sessionID int64, eventType types.PointerEventType, tr TimeRange) ([]types.PointerEvent, error) {
	q := `SELECT session_id, timestamp, event_type, x, y, button, pressed,
			scroll_dx, scroll_dy, task_id
		 FROM pointer_events WHERE session_id = ?`
	args := []interface{}{sessionID}
	if eventType != "" {
		q += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	clause, cargs := tr.clause("timestamp")
	q += clause + ` ORDER BY timestamp, id`
	args = append(args, cargs...)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("query pointer events", err)
	}
	defer rows.Close()

	var out []types.PointerEvent
	for rows.Next() {
		var (
			e        types.PointerEvent
			et       string
			button   sql.NullString
			pressed  sql.NullBool
			dx, dy   sql.NullFloat64
			taskID   sql.NullInt64
		)
		if err := rows.Scan(&e.SessionID, &e.Timestamp, &et, &e.X, &e.Y,
			&button, &pressed, &dx, &dy, &taskID); err != nil {
			return nil, hcierrors.NewStorageUnavailable("scan pointer event", err)
		}
		e.Type = types.PointerEventType(et)
		e.Button = button.String
		if pressed.Valid {
			v := pressed.Bool
			e.Pressed = &v
		}
		if dx.Valid {
			v := dx.Float64
			e.ScrollDX = &v
		}
		if dy.Valid {
			v := dy.Float64
			e.ScrollDY = &v
		}
		if taskID.Valid {
			v := taskID.Int64
			e.TaskID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryScreenshots returns a session's screenshot records ordered by
// timestamp, with trigger metadata decoded.
func (s *Store) QueryScreenshots(ctx context.Context, sessionID int64, tr TimeRange) ([]types.ScreenshotEvent, error) {
	q := `SELECT session_id, timestamp, file_path, file_size, width, height, format,
			trigger_type, trigger_x, trigger_y, trigger_meta, task_id
		 FROM screenshots WHERE session_id = ?`
	args := []interface{}{sessionID}
	clause, cargs := tr.clause("timestamp")
	q += clause + ` ORDER BY timestamp, id`
	args = append(args, cargs...)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("query screenshots", err)
	}
	defer rows.Close()

	var out []types.ScreenshotEvent
	for rows.Next() {
		var (
			e      types.ScreenshotEvent
			tt     string
			tx, ty sql.NullInt64
			meta   []byte
			taskID sql.NullInt64
		)
		if err := rows.Scan(&e.SessionID, &e.Timestamp, &e.FilePath, &e.FileSize,
			&e.Width, &e.Height, &e.Format, &tt, &tx, &ty, &meta, &taskID); err != nil {
			return nil, hcierrors.NewStorageUnavailable("scan screenshot", err)
		}
		e.TriggerType = types.TriggerType(tt)
		if tx.Valid {
			v := int(tx.Int64)
			e.TriggerX = &v
		}
		if ty.Valid {
			v := int(ty.Int64)
			e.TriggerY = &v
		}
		if taskID.Valid {
			v := taskID.Int64
			e.TaskID = &v
		}
		if e.TriggerMeta, err = decodeTriggerMeta(meta); err != nil {
			return nil, hcierrors.NewInternalError("decode trigger meta", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueryAudioSegments returns a session's audio segments ordered by start
// timestamp.
func (s *Store) QueryAudioSegments(ctx context.Context, sessionID int64, tr TimeRange) ([]types.AudioSegment, error) {
	q := `SELECT session_id, start_timestamp, end_timestamp, duration, file_path,
			sample_rate, channels, file_size, task_id
		 FROM audio_segments WHERE session_id = ?`
	args := []interface{}{sessionID}
	clause, cargs := tr.clause("start_timestamp")
	q += clause + ` ORDER BY start_timestamp, id`
	args = append(args, cargs...)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("query audio segments", err)
	}
	defer rows.Close()

	var out []types.AudioSegment
	for rows.Next() {
		var (
			seg    types.AudioSegment
			taskID sql.NullInt64
		)
		if err := rows.Scan(&seg.SessionID, &seg.StartTimestamp, &seg.EndTimestamp,
			&seg.Duration, &seg.FilePath, &seg.SampleRate, &seg.Channels,
			&seg.FileSize, &taskID); err != nil {
			return nil, hcierrors.NewStorageUnavailable("scan audio segment", err)
		}
		if taskID.Valid {
			v := taskID.Int64
			seg.TaskID = &v
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// QueryEmotionSamples returns a session's emotion samples ordered by
// timestamp.
func (s *Store) QueryEmotionSamples(ctx context.Context, sessionID int64, tr TimeRange) ([]types.EmotionSample, error) {
	q := `SELECT session_id, timestamp, angry, disgust, fear, happy, sad, surprise,
			neutral, dominant_emotion, face_confidence, age, gender
		 FROM emotion_samples WHERE session_id = ?`
	args := []interface{}{sessionID}
	clause, cargs := tr.clause("timestamp")
	q += clause + ` ORDER BY timestamp, id`
	args = append(args, cargs...)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("query emotion samples", err)
	}
	defer rows.Close()

	var out []types.EmotionSample
	for rows.Next() {
		var (
			sm     types.EmotionSample
			age    sql.NullInt64
			gender sql.NullString
		)
		if err := rows.Scan(&sm.SessionID, &sm.Timestamp, &sm.Angry, &sm.Disgust,
			&sm.Fear, &sm.Happy, &sm.Sad, &sm.Surprise, &sm.Neutral,
			&sm.DominantEmotion, &sm.FaceConfidence, &age, &gender); err != nil {
			return nil, hcierrors.NewStorageUnavailable("scan emotion sample", err)
		}
		if age.Valid {
			v := int(age.Int64)
			sm.Age = &v
		}
		if gender.Valid {
			v := gender.String
			sm.Gender = &v
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// QueryGazeSamples returns a session's gaze samples ordered by
// timestamp.
func (s *Store) QueryGazeSamples(ctx context.Context, sessionID int64, tr TimeRange) ([]types.GazeSample, error) {
	q := `SELECT session_id, timestamp, left_pupil_x, left_pupil_y, right_pupil_x,
			right_pupil_y, gaze_x, gaze_y, left_eye_open, right_eye_open,
			head_pose_x, head_pose_y, head_pose_z, is_calibrated
		 FROM gaze_samples WHERE session_id = ?`
	args := []interface{}{sessionID}
	clause, cargs := tr.clause("timestamp")
	q += clause + ` ORDER BY timestamp, id`
	args = append(args, cargs...)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("query gaze samples", err)
	}
	defer rows.Close()

	var out []types.GazeSample
	for rows.Next() {
		var g types.GazeSample
		if err := rows.Scan(&g.SessionID, &g.Timestamp, &g.LeftPupilX, &g.LeftPupilY,
			&g.RightPupilX, &g.RightPupilY, &g.GazeX, &g.GazeY,
			&g.LeftEyeOpen, &g.RightEyeOpen, &g.HeadPoseX, &g.HeadPoseY,
			&g.HeadPoseZ, &g.IsCalibrated); err != nil {
			return nil, hcierrors.NewStorageUnavailable("scan gaze sample", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// QueryTranscriptions returns a session's transcription segments ordered
// by timestamp.
func (s *Store) QueryTranscriptions(ctx context.Context, sessionID int64, tr TimeRange) ([]types.TranscriptionSegment, error) {
	q := `SELECT session_id, timestamp, text, audio_file, task_id
		 FROM transcriptions WHERE session_id = ?`
	args := []interface{}{sessionID}
	clause, cargs := tr.clause("timestamp")
	q += clause + ` ORDER BY timestamp, id`
	args = append(args, cargs...)

	rows, err := s.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, hcierrors.NewStorageUnavailable("query transcriptions", err)
	}
	defer rows.Close()

	var out []types.TranscriptionSegment
	for rows.Next() {
		var (
			seg    types.TranscriptionSegment
			taskID sql.NullInt64
		)
		if err := rows.Scan(&seg.SessionID, &seg.Timestamp, &seg.Text,
			&seg.AudioFile, &taskID); err != nil {
			return nil, hcierrors.NewStorageUnavailable("scan transcription", err)
		}
		if taskID.Valid {
			v := taskID.Int64
			seg.TaskID = &v
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// StreamCounts holds per-stream row totals for a session.
type StreamCounts struct {
	PointerEvents  int64
	Screenshots    int64
	AudioSegments  int64
	EmotionSamples int64
	GazeSamples    int64
	Transcriptions int64
}

// CountStreams returns the row count of every event stream for a
// session in a single snapshot.
func (s *Store) CountStreams(ctx context.Context, sessionID int64) (StreamCounts, error) {
	var c StreamCounts
	for _, q := range []struct {
		table string
		dst   *int64
	}{
		{"pointer_events", &c.PointerEvents},
		{"screenshots", &c.Screenshots},
		{"audio_segments", &c.AudioSegments},
		{"emotion_samples", &c.EmotionSamples},
		{"gaze_samples", &c.GazeSamples},
		{"transcriptions", &c.Transcriptions},
	} {
		row := s.readDB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+q.table+` WHERE session_id = ?`, sessionID)
		if err := row.Scan(q.dst); err != nil {
			return c, hcierrors.NewStorageUnavailable("count "+q.table, err)
		}
	}
	return c, nil
}
