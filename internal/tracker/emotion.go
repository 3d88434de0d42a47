package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/hcilog/hcilog/internal/buffer"
	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Emotion samples the facial-emotion backend at a fixed rate. The
// timeline stays dense: a frame with no detected face still produces a
// sample, with zero confidence and the undetermined label.
type Emotion struct {
	runner
	cfg     config.EmotionConfig
	bufCfg  config.BufferConfig
	adapter capture.Adapter[capture.EmotionReading]
	buf     *buffer.Buffer[types.EmotionSample]
}

// NewEmotion creates the emotion tracker.
func NewEmotion(cfg config.EmotionConfig, bufCfg config.BufferConfig,
	adapter capture.Adapter[capture.EmotionReading], sink buffer.Sink[types.EmotionSample]) *Emotion {
	return &Emotion{
		runner:  newRunner("emotion"),
		cfg:     cfg,
		bufCfg:  bufCfg,
		adapter: adapter,
		buf:     buffer.New("emotion", bufCfg.BatchSize, bufCfg.RetryBackoff, sink),
	}
}

func (e *Emotion) Start(ctx context.Context, sess *types.Session, clock Clock) error {
	return e.begin(ctx, e.adapter.Open, func(loopCtx context.Context) error {
		defer e.adapter.Close()
		return e.loop(loopCtx, sess, clock)
	})
}

func (e *Emotion) Stop(ctx context.Context) error { return e.halt(ctx) }

func (e *Emotion) loop(ctx context.Context, sess *types.Session, clock Clock) error {
	return pump(ctx, e.buf, flushInterval(e.bufCfg.FlushInterval),
		func(ctx context.Context, flushErrs <-chan error) error {
			return e.capture(ctx, sess, clock, flushErrs)
		})
}

func (e *Emotion) capture(ctx context.Context, sess *types.Session, clock Clock, flushErrs <-chan error) error {
	ticker := newTicker(rateInterval(e.cfg.SampleRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-flushErrs:
			return err
		case <-ticker.C:
		}

		reading, err := e.adapter.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrEndOfStream):
			<-ctx.Done()
			return nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case hcierrors.GetCode(err) == hcierrors.CodeAdapterTimeout:
			continue
		default:
			return hcierrors.NewAdapterUnavailable("emotion", err)
		}

		sample := normalizeEmotion(reading, sess.ID, clock.Now())
		if fatal, err := appendErrFatal("emotion", e.buf.Append(ctx, sample)); fatal {
			return err
		}
		e.count.Add(1)
	}
}

// normalizeEmotion converts a raw reading into a persisted sample. A
// no-face frame keeps a zero intensity vector and zero confidence;
// Normalize then assigns the undetermined label.
func normalizeEmotion(r capture.EmotionReading, sessionID int64, ts float64) types.EmotionSample {
	sample := types.EmotionSample{
		SessionID: sessionID,
		Timestamp: ts,
	}
	if r.FaceDetected {
		sample.Angry = r.Intensities[0]
		sample.Disgust = r.Intensities[1]
		sample.Fear = r.Intensities[2]
		sample.Happy = r.Intensities[3]
		sample.Sad = r.Intensities[4]
		sample.Surprise = r.Intensities[5]
		sample.Neutral = r.Intensities[6]
		sample.FaceConfidence = r.Confidence
		sample.Age = r.Age
		sample.Gender = r.Gender
	}
	sample.Normalize()
	return sample
}

// rateInterval converts a Hz sample rate to the ticker period.
func rateInterval(hz float64) time.Duration {
	if hz <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / hz)
}

// FlushNow forces the emotion buffer to storage.
func (e *Emotion) FlushNow(ctx context.Context) error { return e.buf.Flush(ctx) }
