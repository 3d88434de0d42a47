package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"

	"github.com/hcilog/hcilog/internal/artifact"
	"github.com/hcilog/hcilog/internal/buffer"
	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Audio accumulates raw PCM into fixed-duration segments. Each finished
// segment is written to the artifact store as a WAV file and recorded as
// one row whose duration equals end minus start.
type Audio struct {
	runner
	cfg     config.AudioConfig
	bufCfg  config.BufferConfig
	adapter capture.Adapter[capture.AudioChunk]
	art     artifact.Store
	buf     *buffer.Buffer[types.AudioSegment]

	seq          int
	pcm          bytes.Buffer
	segmentStart float64
	accumulated  float64
	hasStart     bool
}

// NewAudio creates the audio tracker.
func NewAudio(cfg config.AudioConfig, bufCfg config.BufferConfig,
	adapter capture.Adapter[capture.AudioChunk], art artifact.Store,
	sink buffer.Sink[types.AudioSegment]) *Audio {
	return &Audio{
		runner:  newRunner("audio"),
		cfg:     cfg,
		bufCfg:  bufCfg,
		adapter: adapter,
		art:     art,
		buf:     buffer.New("audio", bufCfg.BatchSize, bufCfg.RetryBackoff, sink),
	}
}

func (a *Audio) Start(ctx context.Context, sess *types.Session, clock Clock) error {
	a.seq = 0
	a.pcm.Reset()
	a.accumulated = 0
	a.hasStart = false
	return a.begin(ctx, a.adapter.Open, func(loopCtx context.Context) error {
		defer a.adapter.Close()
		return a.loop(loopCtx, sess, clock)
	})
}

func (a *Audio) Stop(ctx context.Context) error { return a.halt(ctx) }

func (a *Audio) loop(ctx context.Context, sess *types.Session, clock Clock) error {
	return pump(ctx, a.buf, flushInterval(a.bufCfg.FlushInterval),
		func(ctx context.Context, flushErrs <-chan error) error {
			err := a.capture(ctx, sess, clock, flushErrs)
			// Close out the partial segment so trailing audio is kept.
			if ferr := a.finishSegment(context.Background(), sess, clock.Now()); err == nil {
				err = ferr
			}
			return err
		})
}

func (a *Audio) capture(ctx context.Context, sess *types.Session, clock Clock, flushErrs <-chan error) error {
	for {
		select {
		case err := <-flushErrs:
			return err
		default:
		}

		chunk, err := a.adapter.Next(ctx)
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
			return hcierrors.NewAdapterUnavailable("audio", err)
		}

		now := clock.Now()
		if !a.hasStart {
			a.segmentStart = now - chunk.Duration
			a.hasStart = true
		}
		a.pcm.Write(chunk.PCM)
		a.accumulated += chunk.Duration

		if a.accumulated >= a.cfg.SegmentDuration.Seconds() {
			if err := a.finishSegment(ctx, sess, now); err != nil {
				return err
			}
		}
	}
}

// finishSegment writes the accumulated PCM as a WAV artifact and emits
// one segment event. Empty accumulation is a no-op.
func (a *Audio) finishSegment(ctx context.Context, sess *types.Session, end float64) error {
	if !a.hasStart || a.pcm.Len() == 0 {
		return nil
	}

	wav := encodeWAV(a.pcm.Bytes(), a.cfg.SampleRate, a.cfg.Channels)
	objectPath := artifact.AudioPath(sess.UUID, a.seq)
	size, err := a.art.Save(ctx, bytes.NewReader(wav), objectPath)
	if err != nil {
		return hcierrors.NewStorageUnavailable("save audio artifact", err)
	}

	seg := types.AudioSegment{
		SessionID:      sess.ID,
		StartTimestamp: a.segmentStart,
		EndTimestamp:   end,
		Duration:       end - a.segmentStart,
		FilePath:       objectPath,
		SampleRate:     a.cfg.SampleRate,
		Channels:       a.cfg.Channels,
		FileSize:       size,
	}
	if fatal, err := appendErrFatal("audio", a.buf.Append(ctx, seg)); fatal {
		return err
	}
	a.count.Add(1)

	a.seq++
	a.pcm.Reset()
	a.accumulated = 0
	a.hasStart = false
	return nil
}

// encodeWAV wraps 16-bit PCM in a canonical RIFF/WAVE header.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(36+len(pcm)))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, uint16(channels))
	binary.Write(&out, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&out, binary.LittleEndian, uint32(byteRate))
	binary.Write(&out, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&out, binary.LittleEndian, uint16(bitsPerSample))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(len(pcm)))
	out.Write(pcm)
	return out.Bytes()
}

// FlushNow forces the audio buffer to storage.
func (a *Audio) FlushNow(ctx context.Context) error { return a.buf.Flush(ctx) }
