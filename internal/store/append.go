package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	"github.com/golang/snappy"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// withTx runs fn inside a single transaction on the write connection.
// Any error rolls the whole batch back, so a batch is visible either in
// full or not at all.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return hcierrors.NewStorageUnavailable(op+": begin", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapSQLiteError(op+": commit", err)
	}
	return nil
}

// AppendPointerBatch persists a batch of pointer events atomically.
func (s *Store) AppendPointerBatch(ctx context.Context, events []types.PointerEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.withTx(ctx, "append pointer batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO pointer_events (session_id, timestamp, event_type, x, y,
				button, pressed, scroll_dx, scroll_dy, task_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return hcierrors.NewStorageUnavailable("prepare pointer insert", err)
		}
		defer stmt.Close()

		for _, e := range events {
			var button sql.NullString
			if e.Button != "" {
				button = sql.NullString{String: e.Button, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, e.SessionID, e.Timestamp, string(e.Type),
				e.X, e.Y, button, nullBool(e.Pressed), nullFloat(e.ScrollDX),
				nullFloat(e.ScrollDY), nullInt(e.TaskID)); err != nil {
				return mapSQLiteError("append pointer batch", err)
			}
		}
		return nil
	})
}

// AppendScreenshotBatch persists a batch of screenshot records
// atomically. Trigger metadata is JSON-encoded and snappy-compressed.
func (s *Store) AppendScreenshotBatch(ctx context.Context, events []types.ScreenshotEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.withTx(ctx, "append screenshot batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO screenshots (session_id, timestamp, file_path, file_size,
				width, height, format, trigger_type, trigger_x, trigger_y, trigger_meta, task_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return hcierrors.NewStorageUnavailable("prepare screenshot insert", err)
		}
		defer stmt.Close()

		for _, e := range events {
			meta, err := encodeTriggerMeta(e.TriggerMeta)
			if err != nil {
				return hcierrors.NewInternalError("encode trigger meta", err)
			}
			if _, err := stmt.ExecContext(ctx, e.SessionID, e.Timestamp, e.FilePath,
				e.FileSize, e.Width, e.Height, e.Format, string(e.TriggerType),
				nullIntP(e.TriggerX), nullIntP(e.TriggerY), meta, nullInt(e.TaskID)); err != nil {
				return mapSQLiteError("append screenshot batch", err)
			}
		}
		return nil
	})
}

// AppendAudioBatch persists a batch of audio segment records atomically.
func (s *Store) AppendAudioBatch(ctx context.Context, segments []types.AudioSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return s.withTx(ctx, "append audio batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO audio_segments (session_id, start_timestamp, end_timestamp,
				duration, file_path, sample_rate, channels, file_size, task_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return hcierrors.NewStorageUnavailable("prepare audio insert", err)
		}
		defer stmt.Close()

		for _, seg := range segments {
			if _, err := stmt.ExecContext(ctx, seg.SessionID, seg.StartTimestamp,
				seg.EndTimestamp, seg.Duration, seg.FilePath, seg.SampleRate,
				seg.Channels, seg.FileSize, nullInt(seg.TaskID)); err != nil {
				return mapSQLiteError("append audio batch", err)
			}
		}
		return nil
	})
}

// AppendEmotionBatch persists a batch of emotion samples atomically.
// Samples are normalized before insert so the clamp invariant holds at
// the storage boundary independent of the producer.
func (s *Store) AppendEmotionBatch(ctx context.Context, samples []types.EmotionSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.withTx(ctx, "append emotion batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO emotion_samples (session_id, timestamp, angry, disgust, fear,
				happy, sad, surprise, neutral, dominant_emotion, face_confidence, age, gender)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return hcierrors.NewStorageUnavailable("prepare emotion insert", err)
		}
		defer stmt.Close()

		for _, sm := range samples {
			sm.Normalize()
			if _, err := stmt.ExecContext(ctx, sm.SessionID, sm.Timestamp,
				sm.Angry, sm.Disgust, sm.Fear, sm.Happy, sm.Sad, sm.Surprise,
				sm.Neutral, sm.DominantEmotion, sm.FaceConfidence,
				nullIntP(sm.Age), nullString(sm.Gender)); err != nil {
				return mapSQLiteError("append emotion batch", err)
			}
		}
		return nil
	})
}

// AppendGazeBatch persists a batch of gaze samples atomically.
func (s *Store) AppendGazeBatch(ctx context.Context, samples []types.GazeSample) error {
	if len(samples) == 0 {
		return nil
	}
	return s.withTx(ctx, "append gaze batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO gaze_samples (session_id, timestamp, left_pupil_x, left_pupil_y,
				right_pupil_x, right_pupil_y, gaze_x, gaze_y, left_eye_open, right_eye_open,
				head_pose_x, head_pose_y, head_pose_z, is_calibrated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return hcierrors.NewStorageUnavailable("prepare gaze insert", err)
		}
		defer stmt.Close()

		for _, g := range samples {
			if _, err := stmt.ExecContext(ctx, g.SessionID, g.Timestamp,
				g.LeftPupilX, g.LeftPupilY, g.RightPupilX, g.RightPupilY,
				g.GazeX, g.GazeY, g.LeftEyeOpen, g.RightEyeOpen,
				g.HeadPoseX, g.HeadPoseY, g.HeadPoseZ, g.IsCalibrated); err != nil {
				return mapSQLiteError("append gaze batch", err)
			}
		}
		return nil
	})
}

// AppendTranscriptionBatch persists derived transcription segments
// atomically.
func (s *Store) AppendTranscriptionBatch(ctx context.Context, segments []types.TranscriptionSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return s.withTx(ctx, "append transcription batch", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO transcriptions (session_id, timestamp, text, audio_file, task_id)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return hcierrors.NewStorageUnavailable("prepare transcription insert", err)
		}
		defer stmt.Close()

		for _, seg := range segments {
			if _, err := stmt.ExecContext(ctx, seg.SessionID, seg.Timestamp,
				seg.Text, seg.AudioFile, nullInt(seg.TaskID)); err != nil {
				return mapSQLiteError("append transcription batch", err)
			}
		}
		return nil
	})
}

// DeleteSession removes a session and, through cascade rules, every row
// recorded under it. Artifact files on disk are not touched.
func (s *Store) DeleteSession(ctx context.Context, sessionID int64) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return mapSQLiteError("delete session", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return hcierrors.New(hcierrors.ErrCategorySession, hcierrors.CodeSessionNotFound, "session not found")
	}
	log.Printf("store: deleted session %d", sessionID)
	return nil
}

// encodeTriggerMeta serializes trigger metadata as snappy-compressed
// JSON, or nil for empty metadata.
func encodeTriggerMeta(meta map[string]interface{}) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// decodeTriggerMeta reverses encodeTriggerMeta.
func decodeTriggerMeta(blob []byte) (map[string]interface{}, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, err
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func nullBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullIntP(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
