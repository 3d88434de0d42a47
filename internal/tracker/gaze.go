package tracker

import (
	"context"
	"errors"

	"github.com/hcilog/hcilog/internal/buffer"
	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Gaze records one sample per adapter frame: pupil positions, the
// estimated gaze point, eye openness, head pose, and the calibration
// flag reported by the backend.
type Gaze struct {
	runner
	cfg     config.GazeConfig
	bufCfg  config.BufferConfig
	adapter capture.Adapter[capture.GazeReading]
	buf     *buffer.Buffer[types.GazeSample]
}

// NewGaze creates the gaze tracker.
func NewGaze(cfg config.GazeConfig, bufCfg config.BufferConfig,
	adapter capture.Adapter[capture.GazeReading], sink buffer.Sink[types.GazeSample]) *Gaze {
	return &Gaze{
		runner:  newRunner("gaze"),
		cfg:     cfg,
		bufCfg:  bufCfg,
		adapter: adapter,
		buf:     buffer.New("gaze", bufCfg.BatchSize, bufCfg.RetryBackoff, sink),
	}
}

func (g *Gaze) Start(ctx context.Context, sess *types.Session, clock Clock) error {
	return g.begin(ctx, g.adapter.Open, func(loopCtx context.Context) error {
		defer g.adapter.Close()
		return g.loop(loopCtx, sess, clock)
	})
}

func (g *Gaze) Stop(ctx context.Context) error { return g.halt(ctx) }

func (g *Gaze) loop(ctx context.Context, sess *types.Session, clock Clock) error {
	return pump(ctx, g.buf, flushInterval(g.bufCfg.FlushInterval),
		func(ctx context.Context, flushErrs <-chan error) error {
			return g.capture(ctx, sess, clock, flushErrs)
		})
}

func (g *Gaze) capture(ctx context.Context, sess *types.Session, clock Clock, flushErrs <-chan error) error {
	for {
		select {
		case err := <-flushErrs:
			return err
		default:
		}

		reading, err := g.adapter.Next(ctx)
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
			return hcierrors.NewAdapterUnavailable("gaze", err)
		}

		sample := types.GazeSample{
			SessionID:    sess.ID,
			Timestamp:    clock.Now(),
			LeftPupilX:   reading.LeftPupilX,
			LeftPupilY:   reading.LeftPupilY,
			RightPupilX:  reading.RightPupilX,
			RightPupilY:  reading.RightPupilY,
			GazeX:        reading.GazeX,
			GazeY:        reading.GazeY,
			LeftEyeOpen:  reading.LeftEyeOpen,
			RightEyeOpen: reading.RightEyeOpen,
			HeadPoseX:    reading.HeadPoseX,
			HeadPoseY:    reading.HeadPoseY,
			HeadPoseZ:    reading.HeadPoseZ,
			IsCalibrated: reading.Calibrated,
		}
		if fatal, err := appendErrFatal("gaze", g.buf.Append(ctx, sample)); fatal {
			return err
		}
		g.count.Add(1)
	}
}

// FlushNow forces the gaze buffer to storage.
func (g *Gaze) FlushNow(ctx context.Context) error { return g.buf.Flush(ctx) }
