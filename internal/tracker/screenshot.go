package tracker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/hcilog/hcilog/internal/artifact"
	"github.com/hcilog/hcilog/internal/buffer"
	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Trigger is a pointer event forwarded to the screenshot tracker as a
// capture candidate.
type Trigger struct {
	Kind     types.TriggerType
	X, Y     int
	Button   string
	ScrollDY float64
}

// Screenshot captures frames either periodically or on pointer
// triggers, writes them to the artifact store, and records one row per
// kept frame. Consecutive identical frames are suppressed by content
// hash.
type Screenshot struct {
	runner
	cfg      config.ScreenshotConfig
	bufCfg   config.BufferConfig
	adapter  capture.Adapter[capture.FrameSample]
	art      artifact.Store
	buf      *buffer.Buffer[types.ScreenshotEvent]
	triggers <-chan Trigger

	seq         int
	lastHash    uint64
	hasHash     bool
	scrollAccum float64
	lastCapture float64
	hasCapture  bool
}

// NewScreenshot creates the screenshot tracker. triggers may be nil in
// periodic mode.
func NewScreenshot(cfg config.ScreenshotConfig, bufCfg config.BufferConfig,
	adapter capture.Adapter[capture.FrameSample], art artifact.Store,
	triggers <-chan Trigger, sink buffer.Sink[types.ScreenshotEvent]) *Screenshot {
	return &Screenshot{
		runner:   newRunner("screenshot"),
		cfg:      cfg,
		bufCfg:   bufCfg,
		adapter:  adapter,
		art:      art,
		buf:      buffer.New("screenshot", bufCfg.BatchSize, bufCfg.RetryBackoff, sink),
		triggers: triggers,
	}
}

func (s *Screenshot) Start(ctx context.Context, sess *types.Session, clock Clock) error {
	s.seq = 0
	s.hasHash = false
	s.scrollAccum = 0
	s.hasCapture = false
	return s.begin(ctx, s.adapter.Open, func(loopCtx context.Context) error {
		defer s.adapter.Close()
		return s.loop(loopCtx, sess, clock)
	})
}

func (s *Screenshot) Stop(ctx context.Context) error { return s.halt(ctx) }

func (s *Screenshot) loop(ctx context.Context, sess *types.Session, clock Clock) error {
	return pump(ctx, s.buf, flushInterval(s.bufCfg.FlushInterval),
		func(ctx context.Context, flushErrs <-chan error) error {
			if s.cfg.Mode == "periodic" {
				return s.runPeriodic(ctx, sess, clock, flushErrs)
			}
			return s.runEvent(ctx, sess, clock, flushErrs)
		})
}

func (s *Screenshot) runPeriodic(ctx context.Context, sess *types.Session, clock Clock, flushErrs <-chan error) error {
	ticker := newTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-flushErrs:
			return err
		case <-ticker.C:
			if err := s.captureFrame(ctx, sess, clock.Now(), types.TriggerPeriodic, nil); err != nil {
				return err
			}
		}
	}
}

func (s *Screenshot) runEvent(ctx context.Context, sess *types.Session, clock Clock, flushErrs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-flushErrs:
			return err
		case trig, ok := <-s.triggers:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if err := s.onTrigger(ctx, sess, clock, trig); err != nil {
				return err
			}
		}
	}
}

// onTrigger applies the event-mode capture policy: clicks capture
// immediately (subject to cooldown), scrolls capture once the
// accumulated travel passes the threshold.
func (s *Screenshot) onTrigger(ctx context.Context, sess *types.Session, clock Clock, trig Trigger) error {
	now := clock.Now()

	switch trig.Kind {
	case types.TriggerClick:
		if s.inCooldown(now) {
			return nil
		}
		return s.captureFrame(ctx, sess, now, types.TriggerClick, &trig)

	case types.TriggerScroll:
		s.scrollAccum += math.Abs(trig.ScrollDY)
		if s.scrollAccum < s.cfg.ScrollThreshold || s.inCooldown(now) {
			return nil
		}
		accumulated := s.scrollAccum
		s.scrollAccum = 0
		trig.ScrollDY = accumulated
		return s.captureFrame(ctx, sess, now, types.TriggerScroll, &trig)
	}
	return nil
}

func (s *Screenshot) inCooldown(now float64) bool {
	return s.hasCapture && now-s.lastCapture < s.cfg.Cooldown.Seconds()
}

// captureFrame pulls one frame from the adapter, suppresses duplicates,
// writes the PNG artifact, and records the screenshot row.
func (s *Screenshot) captureFrame(ctx context.Context, sess *types.Session, ts float64,
	triggerType types.TriggerType, trig *Trigger) error {
	frame, err := s.adapter.Next(ctx)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrEndOfStream),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case hcierrors.GetCode(err) == hcierrors.CodeAdapterTimeout:
		return nil
	default:
		return hcierrors.NewAdapterUnavailable("screenshot", err)
	}

	if s.cfg.DedupeFrames {
		hash := murmur3.Sum64(frame.Pixels)
		if s.hasHash && hash == s.lastHash {
			return nil
		}
		s.lastHash = hash
		s.hasHash = true
	}

	encoded, err := encodeFrame(frame)
	if err != nil {
		return hcierrors.NewInternalError("encode frame", err)
	}

	objectPath := artifact.ScreenshotPath(sess.UUID, s.seq, s.cfg.Format)
	size, err := s.art.Save(ctx, bytes.NewReader(encoded), objectPath)
	if err != nil {
		return hcierrors.NewStorageUnavailable("save screenshot artifact", err)
	}
	s.seq++
	s.lastCapture = ts
	s.hasCapture = true

	event := types.ScreenshotEvent{
		SessionID:   sess.ID,
		Timestamp:   ts,
		FilePath:    objectPath,
		FileSize:    size,
		Width:       frame.Width,
		Height:      frame.Height,
		Format:      s.cfg.Format,
		TriggerType: triggerType,
	}
	if trig != nil {
		x, y := trig.X, trig.Y
		event.TriggerX = &x
		event.TriggerY = &y
		meta := map[string]interface{}{}
		if trig.Button != "" {
			meta["button"] = trig.Button
		}
		if triggerType == types.TriggerScroll {
			meta["scroll_accum"] = trig.ScrollDY
		}
		if len(meta) > 0 {
			event.TriggerMeta = meta
		}
	}

	if fatal, err := appendErrFatal("screenshot", s.buf.Append(ctx, event)); fatal {
		return err
	}
	s.count.Add(1)
	return nil
}

// encodeFrame converts a packed RGBA frame into PNG bytes.
func encodeFrame(frame capture.FrameSample) ([]byte, error) {
	img := &image.NRGBA{
		Pix:    frame.Pixels,
		Stride: frame.Width * 4,
		Rect:   image.Rect(0, 0, frame.Width, frame.Height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FlushNow forces the screenshot buffer to storage.
func (s *Screenshot) FlushNow(ctx context.Context) error { return s.buf.Flush(ctx) }
