// Package buffer provides per-stream event buffering between trackers
// and the store. Events accumulate in memory and flush as atomic batches
// when the batch size is reached, on a timer, or on demand.
package buffer

import (
	"context"
	"log"
	"sync"
	"time"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
)

// Sink receives one flushed batch. A sink must be all-or-nothing: on
// error none of the batch may have been persisted, so the same batch can
// be redelivered.
type Sink[T any] func(ctx context.Context, batch []T) error

// Buffer accumulates events of one stream. Safe for concurrent use.
type Buffer[T any] struct {
	stream       string
	capacity     int
	retryBackoff time.Duration
	sink         Sink[T]

	mu    sync.Mutex
	items []T

	// flushMu serializes sink deliveries so batches reach storage in
	// append order even when Flush and a capacity flush race.
	flushMu sync.Mutex
}

// New creates a buffer that delivers to sink in batches of capacity.
func New[T any](stream string, capacity int, retryBackoff time.Duration, sink Sink[T]) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		stream:       stream,
		capacity:     capacity,
		retryBackoff: retryBackoff,
		sink:         sink,
	}
}

// Stream returns the stream name the buffer was created for.
func (b *Buffer[T]) Stream() string { return b.stream }

// Len returns the number of buffered (not yet flushed) events.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Append adds one event. When the batch size is reached the full batch
// is flushed before Append returns; otherwise Append only touches
// memory.
func (b *Buffer[T]) Append(ctx context.Context, item T) error {
	b.mu.Lock()
	b.items = append(b.items, item)
	if len(b.items) < b.capacity {
		b.mu.Unlock()
		return nil
	}
	batch := b.items
	b.items = nil
	b.mu.Unlock()

	return b.deliver(ctx, batch)
}

// Flush delivers everything currently buffered. Flushing an empty
// buffer is a no-op, so repeated flushes are safe.
func (b *Buffer[T]) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.items
	b.items = nil
	b.mu.Unlock()

	return b.deliver(ctx, batch)
}

// deliver hands one batch to the sink, retrying a failed delivery once
// after the configured backoff. A batch rejected for a constraint
// violation is not retried: the malformed row is isolated and dropped
// so the stream keeps flowing. A second transient failure puts the
// batch back at the head of the buffer (nothing is lost, nothing was
// written) and escalates as a storage failure.
func (b *Buffer[T]) deliver(ctx context.Context, batch []T) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	err := b.sink(ctx, batch)
	if err == nil {
		return nil
	}
	if hcierrors.IsConstraintViolation(err) {
		return b.isolate(ctx, batch, err)
	}
	log.Printf("buffer: %s flush of %d events failed, retrying: %v", b.stream, len(batch), err)

	select {
	case <-time.After(b.retryBackoff):
	case <-ctx.Done():
		b.restash(batch)
		return hcierrors.NewFlushFailure(b.stream, ctx.Err())
	}

	if err = b.sink(ctx, batch); err == nil {
		return nil
	}
	b.restash(batch)
	return hcierrors.NewStorageUnavailable("flush retry exhausted",
		hcierrors.NewFlushFailure(b.stream, err))
}

// isolate re-delivers a constraint-rejected batch row by row so one
// malformed event cannot poison its batchmates. Rows the sink rejects
// again are logged and dropped; everything else is persisted in order.
// A transient failure mid-isolation restashes the undelivered tail and
// escalates like a normal flush failure.
func (b *Buffer[T]) isolate(ctx context.Context, batch []T, cause error) error {
	log.Printf("buffer: %s batch of %d rejected, isolating malformed events: %v",
		b.stream, len(batch), cause)

	dropped := 0
	for i := range batch {
		err := b.sink(ctx, batch[i:i+1])
		switch {
		case err == nil:
		case hcierrors.IsConstraintViolation(err):
			dropped++
			log.Printf("buffer: %s dropped malformed event: %v", b.stream, err)
		default:
			b.restash(batch[i:])
			return hcierrors.NewStorageUnavailable("flush retry exhausted",
				hcierrors.NewFlushFailure(b.stream, err))
		}
	}
	log.Printf("buffer: %s isolation done: %d kept, %d dropped",
		b.stream, len(batch)-dropped, dropped)
	return nil
}

func (b *Buffer[T]) restash(batch []T) {
	b.mu.Lock()
	b.items = append(batch, b.items...)
	b.mu.Unlock()
}

// Run flushes on every tick of interval until ctx is cancelled, then
// drains whatever remains with a short grace period. Mirrors the
// periodic flusher pattern used for write-ahead buffers.
func (b *Buffer[T]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return b.Flush(drainCtx)
		}
	}
}
