package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

func pointerConfig() config.PointerConfig {
	return config.PointerConfig{Enabled: true, MovementThreshold: 5}
}

func runPointer(t *testing.T, cfg config.PointerConfig, samples []capture.PointerSample, wantCount int64) []types.PointerEvent {
	t.Helper()
	adapter := capture.NewReplayImmediate(samples...)
	sink := &collector[types.PointerEvent]{}
	p := NewPointer(cfg, testBufferConfig(), adapter, sink.sink)

	require.NoError(t, p.Start(context.Background(), testSession(), newStepClock(0.001)))
	require.Eventually(t, func() bool {
		return adapter.Remaining() == 0 && p.Count() == wantCount
	}, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	return sink.all()
}

func TestPointerSuppressesSubThresholdMoves(t *testing.T) {
	// 120 jitter moves inside a 3px box plus one click must produce
	// exactly two rows: the anchoring first move and the click.
	var samples []capture.PointerSample
	for i := 0; i < 120; i++ {
		samples = append(samples, capture.PointerSample{
			Kind: capture.PointerKindMove,
			X:    100 + i%3,
			Y:    100 + (i/3)%3,
		})
	}
	samples = append(samples, capture.PointerSample{
		Kind: capture.PointerKindClick, X: 101, Y: 101, Button: "left", Pressed: true,
	})

	got := runPointer(t, pointerConfig(), samples, 2)
	require.Len(t, got, 2)
	assert.Equal(t, types.PointerMove, got[0].Type)
	assert.Equal(t, types.PointerClick, got[1].Type)
	assert.Equal(t, "left", got[1].Button)
}

func TestPointerAcceptsMovesPastThreshold(t *testing.T) {
	samples := []capture.PointerSample{
		{Kind: capture.PointerKindMove, X: 0, Y: 0},
		{Kind: capture.PointerKindMove, X: 3, Y: 0},  // 3px, suppressed
		{Kind: capture.PointerKindMove, X: 10, Y: 0}, // 10px from anchor
		{Kind: capture.PointerKindMove, X: 13, Y: 4}, // 5px exactly
	}
	got := runPointer(t, pointerConfig(), samples, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].X)
	assert.Equal(t, 10, got[1].X)
	assert.Equal(t, 13, got[2].X)
}

func TestPointerNeverSuppressesScroll(t *testing.T) {
	samples := []capture.PointerSample{
		{Kind: capture.PointerKindMove, X: 50, Y: 50},
		{Kind: capture.PointerKindScroll, X: 50, Y: 50, ScrollDY: -40},
		{Kind: capture.PointerKindScroll, X: 50, Y: 50, ScrollDY: -40},
	}
	got := runPointer(t, pointerConfig(), samples, 3)
	require.Len(t, got, 3)
	assert.Equal(t, types.PointerScroll, got[1].Type)
	require.NotNil(t, got[2].ScrollDY)
	assert.Equal(t, -40.0, *got[2].ScrollDY)
}

func TestPointerTimestampsMonotone(t *testing.T) {
	var samples []capture.PointerSample
	for i := 0; i < 20; i++ {
		samples = append(samples, capture.PointerSample{
			Kind: capture.PointerKindMove, X: i * 10, Y: 0,
		})
	}
	got := runPointer(t, pointerConfig(), samples, 20)
	require.Len(t, got, 20)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Timestamp, got[i-1].Timestamp)
	}
}

func TestPointerForwardsTriggers(t *testing.T) {
	adapter := capture.NewReplayImmediate(
		capture.PointerSample{Kind: capture.PointerKindClick, X: 5, Y: 6, Button: "left", Pressed: true},
		capture.PointerSample{Kind: capture.PointerKindScroll, X: 5, Y: 6, ScrollDY: -120},
	)
	sink := &collector[types.PointerEvent]{}
	p := NewPointer(pointerConfig(), testBufferConfig(), adapter, sink.sink)

	triggers := make(chan Trigger, 8)
	p.ForwardTriggers(triggers)

	require.NoError(t, p.Start(context.Background(), testSession(), newStepClock(0.001)))
	require.Eventually(t, func() bool { return p.Count() == 2 }, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))

	first := <-triggers
	assert.Equal(t, types.TriggerClick, first.Kind)
	assert.Equal(t, 5, first.X)

	second := <-triggers
	assert.Equal(t, types.TriggerScroll, second.Kind)
	assert.Equal(t, -120.0, second.ScrollDY)
}

func TestPointerContinuesPastMalformedEvent(t *testing.T) {
	// Storage rejecting one event as malformed must drop that event
	// and keep the stream alive, not error the tracker.
	var kept []types.PointerEvent
	var mu sync.Mutex
	sink := func(_ context.Context, batch []types.PointerEvent) error {
		for _, e := range batch {
			if e.X == 666 {
				return hcierrors.NewConstraintViolation("pointer batch rejected", nil)
			}
		}
		mu.Lock()
		kept = append(kept, batch...)
		mu.Unlock()
		return nil
	}

	adapter := capture.NewReplayImmediate(
		capture.PointerSample{Kind: capture.PointerKindClick, X: 666, Y: 10, Button: "left", Pressed: true},
		capture.PointerSample{Kind: capture.PointerKindClick, X: 300, Y: 10, Button: "left", Pressed: true},
	)
	cfg := testBufferConfig()
	cfg.BatchSize = 1
	p := NewPointer(pointerConfig(), cfg, adapter, sink)

	require.NoError(t, p.Start(context.Background(), testSession(), newStepClock(0.001)))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kept) == 1
	}, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))

	assert.NoError(t, p.Err())
	assert.Equal(t, StateStopped, p.Status())
	require.Len(t, kept, 1)
	assert.Equal(t, 300, kept[0].X)
}
