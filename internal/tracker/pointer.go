package tracker

import (
	"context"
	"errors"
	"math"

	"github.com/hcilog/hcilog/internal/buffer"
	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Pointer records pointer moves, clicks, and scrolls. Moves below the
// movement threshold are suppressed to keep the stream proportional to
// actual travel; clicks and scrolls always pass.
type Pointer struct {
	runner
	cfg     config.PointerConfig
	bufCfg  config.BufferConfig
	adapter capture.Adapter[capture.PointerSample]
	buf     *buffer.Buffer[types.PointerEvent]

	triggers chan<- Trigger

	lastX, lastY int
	hasLast      bool
}

// NewPointer creates the pointer tracker. sink receives flushed event
// batches, normally bound to the store's pointer append.
func NewPointer(cfg config.PointerConfig, bufCfg config.BufferConfig,
	adapter capture.Adapter[capture.PointerSample], sink buffer.Sink[types.PointerEvent]) *Pointer {
	return &Pointer{
		runner:  newRunner("pointer"),
		cfg:     cfg,
		bufCfg:  bufCfg,
		adapter: adapter,
		buf:     buffer.New("pointer", bufCfg.BatchSize, bufCfg.RetryBackoff, sink),
	}
}

// ForwardTriggers makes the tracker publish clicks and scrolls to ch
// for the event-mode screenshot tracker. Sends never block; a slow
// consumer just misses triggers.
func (p *Pointer) ForwardTriggers(ch chan<- Trigger) {
	p.triggers = ch
}

func (p *Pointer) Start(ctx context.Context, sess *types.Session, clock Clock) error {
	p.hasLast = false
	return p.begin(ctx, p.adapter.Open, func(loopCtx context.Context) error {
		defer p.adapter.Close()
		return p.loop(loopCtx, sess, clock)
	})
}

func (p *Pointer) Stop(ctx context.Context) error { return p.halt(ctx) }

func (p *Pointer) loop(ctx context.Context, sess *types.Session, clock Clock) error {
	return pump(ctx, p.buf, flushInterval(p.bufCfg.FlushInterval),
		func(ctx context.Context, flushErrs <-chan error) error {
			return p.capture(ctx, sess, clock, flushErrs)
		})
}

func (p *Pointer) capture(ctx context.Context, sess *types.Session, clock Clock, flushErrs <-chan error) error {
	for {
		select {
		case err := <-flushErrs:
			return err
		default:
		}

		sample, err := p.adapter.Next(ctx)
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
			return hcierrors.NewAdapterUnavailable("pointer", err)
		}

		event, ok := p.normalize(sample, sess.ID, clock.Now())
		if !ok {
			continue
		}
		if fatal, err := appendErrFatal("pointer", p.buf.Append(ctx, event)); fatal {
			return err
		}
		p.count.Add(1)
		p.forward(event)
	}
}

func (p *Pointer) forward(event types.PointerEvent) {
	if p.triggers == nil {
		return
	}
	var trig Trigger
	switch event.Type {
	case types.PointerClick:
		trig = Trigger{Kind: types.TriggerClick, X: event.X, Y: event.Y, Button: event.Button}
	case types.PointerScroll:
		trig = Trigger{Kind: types.TriggerScroll, X: event.X, Y: event.Y}
		if event.ScrollDY != nil {
			trig.ScrollDY = *event.ScrollDY
		}
	default:
		return
	}
	select {
	case p.triggers <- trig:
	default:
	}
}

// normalize converts a raw sample to a persisted event, applying the
// move suppression policy.
func (p *Pointer) normalize(s capture.PointerSample, sessionID int64, ts float64) (types.PointerEvent, bool) {
	event := types.PointerEvent{
		SessionID: sessionID,
		Timestamp: ts,
		X:         s.X,
		Y:         s.Y,
	}

	switch s.Kind {
	case capture.PointerKindMove:
		if p.hasLast {
			dx := float64(s.X - p.lastX)
			dy := float64(s.Y - p.lastY)
			if math.Hypot(dx, dy) < p.cfg.MovementThreshold {
				return event, false
			}
		}
		p.lastX, p.lastY = s.X, s.Y
		p.hasLast = true
		event.Type = types.PointerMove

	case capture.PointerKindClick:
		pressed := s.Pressed
		event.Type = types.PointerClick
		event.Button = s.Button
		event.Pressed = &pressed
		// A click re-anchors move suppression at its position.
		p.lastX, p.lastY = s.X, s.Y
		p.hasLast = true

	case capture.PointerKindScroll:
		dx, dy := s.ScrollDX, s.ScrollDY
		event.Type = types.PointerScroll
		event.ScrollDX = &dx
		event.ScrollDY = &dy

	default:
		return event, false
	}
	return event, true
}

// FlushNow forces the pointer buffer to storage.
func (p *Pointer) FlushNow(ctx context.Context) error { return p.buf.Flush(ctx) }
