package capture

import (
	"context"
	"sync"
	"time"
)

// TimedSample pairs a scripted sample with the delay before it is
// delivered. Zero delay delivers immediately.
type TimedSample[T any] struct {
	Delay  time.Duration
	Sample T
}

// Replay is a deterministic Adapter that plays back a scripted sample
// sequence. It is the test double for every modality and drives the demo
// recorder.
type Replay[T any] struct {
	mu      sync.Mutex
	script  []TimedSample[T]
	pos     int
	opened  bool
	openErr error
}

// NewReplay builds a replay adapter over script.
func NewReplay[T any](script []TimedSample[T]) *Replay[T] {
	return &Replay[T]{script: script}
}

// NewReplayImmediate builds a replay adapter that delivers samples with
// no delay.
func NewReplayImmediate[T any](samples ...T) *Replay[T] {
	script := make([]TimedSample[T], len(samples))
	for i, s := range samples {
		script[i] = TimedSample[T]{Sample: s}
	}
	return NewReplay(script)
}

// FailOpen makes the next Open return err, simulating an unavailable
// backend.
func (r *Replay[T]) FailOpen(err error) *Replay[T] {
	r.mu.Lock()
	r.openErr = err
	r.mu.Unlock()
	return r
}

func (r *Replay[T]) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openErr != nil {
		return r.openErr
	}
	r.opened = true
	r.pos = 0
	return nil
}

func (r *Replay[T]) Next(ctx context.Context) (T, error) {
	var zero T
	r.mu.Lock()
	if !r.opened {
		r.mu.Unlock()
		return zero, ErrEndOfStream
	}
	if r.pos >= len(r.script) {
		r.mu.Unlock()
		return zero, ErrEndOfStream
	}
	ts := r.script[r.pos]
	r.pos++
	r.mu.Unlock()

	if ts.Delay > 0 {
		select {
		case <-time.After(ts.Delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return ts.Sample, nil
}

func (r *Replay[T]) Close() error {
	r.mu.Lock()
	r.opened = false
	r.mu.Unlock()
	return nil
}

// Remaining reports how many scripted samples have not been delivered.
func (r *Replay[T]) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.script) - r.pos
}
