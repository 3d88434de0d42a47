// Package transcribe turns recorded audio segments into transcription
// rows after a session ends. The speech engine itself lives behind the
// Transcriber interface; this package only orchestrates the pass.
package transcribe

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/hcilog/hcilog/internal/artifact"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/internal/store"
	"github.com/hcilog/hcilog/pkg/types"
)

// Transcriber converts one audio segment into text. Implementations
// wrap an external speech engine; an empty result means the segment
// carried no recognizable speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, sampleRate, channels int) (string, error)
}

// Stage runs the post-session transcription pass over a session's
// stored audio segments.
type Stage struct {
	store       *store.Store
	art         artifact.Store
	transcriber Transcriber
}

// NewStage wires the pass over the session store, the artifact backend
// holding the WAV files, and the speech engine.
func NewStage(st *store.Store, art artifact.Store, tr Transcriber) *Stage {
	return &Stage{store: st, art: art, transcriber: tr}
}

// Run transcribes every audio segment of the session and appends the
// resulting rows in one batch. Segments that fail to open or transcribe
// are skipped and counted, not fatal; the first error is reported after
// the pass completes. Returns the number of transcription rows written.
func (s *Stage) Run(ctx context.Context, sessionID int64) (int, error) {
	segments, err := s.store.QueryAudioSegments(ctx, sessionID, store.TimeRange{})
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, nil
	}

	var (
		rows     []types.TranscriptionSegment
		skipped  int
		firstErr error
	)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		text, err := s.transcribeSegment(ctx, seg)
		if err != nil {
			log.Printf("transcribe: segment %s skipped: %v", seg.FilePath, err)
			skipped++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		rows = append(rows, types.TranscriptionSegment{
			SessionID: seg.SessionID,
			Timestamp: seg.StartTimestamp,
			Text:      text,
			AudioFile: seg.FilePath,
			TaskID:    seg.TaskID,
		})
	}

	if len(rows) > 0 {
		if err := s.store.AppendTranscriptionBatch(ctx, rows); err != nil {
			return 0, err
		}
	}
	log.Printf("transcribe: session %d: %d segments, %d transcribed, %d skipped",
		sessionID, len(segments), len(rows), skipped)

	if skipped > 0 {
		return len(rows), hcierrors.NewInternalError("transcription pass incomplete", firstErr)
	}
	return len(rows), nil
}

func (s *Stage) transcribeSegment(ctx context.Context, seg types.AudioSegment) (string, error) {
	r, err := s.art.Open(ctx, seg.FilePath)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return s.transcriber.Transcribe(ctx, r, seg.SampleRate, seg.Channels)
}
