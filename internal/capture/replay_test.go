package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayPlaysScriptInOrder(t *testing.T) {
	r := NewReplayImmediate(
		PointerSample{Kind: PointerKindMove, X: 1, Y: 1},
		PointerSample{Kind: PointerKindClick, X: 1, Y: 1, Button: "left", Pressed: true},
	)
	require.NoError(t, r.Open(context.Background()))

	first, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PointerKindMove, first.Kind)

	second, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "left", second.Button)

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.Zero(t, r.Remaining())
}

func TestReplayFailOpen(t *testing.T) {
	backendErr := errors.New("no device")
	r := NewReplayImmediate(GazeReading{GazeX: 0.5}).FailOpen(backendErr)

	err := r.Open(context.Background())
	assert.ErrorIs(t, err, backendErr)

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReplayHonorsContextDuringDelay(t *testing.T) {
	r := NewReplay([]TimedSample[AudioChunk]{
		{Delay: time.Minute, Sample: AudioChunk{SampleRate: 44100}},
	})
	require.NoError(t, r.Open(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
