package tracker

import (
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcilog/hcilog/internal/artifact"
	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	"github.com/hcilog/hcilog/pkg/types"
)

func audioConfig() config.AudioConfig {
	return config.AudioConfig{
		Enabled:         true,
		SegmentDuration: time.Second,
		SampleRate:      16000,
		Channels:        1,
	}
}

func pcmChunk(n int, duration float64) capture.AudioChunk {
	return capture.AudioChunk{
		PCM:        make([]byte, n),
		SampleRate: 16000,
		Channels:   1,
		Duration:   duration,
	}
}

func TestAudioEmitsSegmentAtBoundary(t *testing.T) {
	art, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)
	sink := &collector[types.AudioSegment]{}

	// 3 chunks x 0.4s crosses the 1s segment boundary on the third.
	adapter := capture.NewReplayImmediate(
		pcmChunk(1280, 0.4), pcmChunk(1280, 0.4), pcmChunk(1280, 0.4),
	)
	a := NewAudio(audioConfig(), testBufferConfig(), adapter, art, sink.sink)

	require.NoError(t, a.Start(context.Background(), testSession(), newStepClock(0.4)))
	require.Eventually(t, func() bool { return a.Count() == 1 }, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))

	got := sink.all()
	require.Len(t, got, 1)
	seg := got[0]
	assert.InDelta(t, seg.EndTimestamp-seg.StartTimestamp, seg.Duration, 1e-9)
	assert.Equal(t, 16000, seg.SampleRate)
	assert.Equal(t, artifact.AudioPath("test-session", 0), seg.FilePath)

	ok, err := art.Exists(context.Background(), seg.FilePath)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAudioFlushesPartialSegmentOnStop(t *testing.T) {
	art, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)
	sink := &collector[types.AudioSegment]{}

	adapter := capture.NewReplayImmediate(pcmChunk(640, 0.2))
	a := NewAudio(audioConfig(), testBufferConfig(), adapter, art, sink.sink)

	require.NoError(t, a.Start(context.Background(), testSession(), newStepClock(0.2)))
	require.Eventually(t, func() bool { return adapter.Remaining() == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))

	got := sink.all()
	require.Len(t, got, 1)
	assert.InDelta(t, got[0].EndTimestamp-got[0].StartTimestamp, got[0].Duration, 1e-9)
	assert.Greater(t, got[0].Duration, 0.0)
}

func TestAudioWAVHeader(t *testing.T) {
	art, err := artifact.NewLocal(t.TempDir())
	require.NoError(t, err)
	sink := &collector[types.AudioSegment]{}

	adapter := capture.NewReplayImmediate(
		pcmChunk(32000, 1.0), // exactly one segment
	)
	a := NewAudio(audioConfig(), testBufferConfig(), adapter, art, sink.sink)

	require.NoError(t, a.Start(context.Background(), testSession(), newStepClock(1.0)))
	require.Eventually(t, func() bool { return a.Count() == 1 }, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))

	got := sink.all()
	require.Len(t, got, 1)

	r, err := art.Open(context.Background(), got[0].FilePath)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, int64(len(data)), got[0].FileSize)
}
