// Package tracker implements the per-modality capture trackers. Each
// tracker runs one goroutine that pulls raw samples from its capture
// adapter, normalizes them, and appends the result to a per-stream
// buffer.
package tracker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hcilog/hcilog/internal/buffer"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// State is a tracker lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateErrored  State = "errored"
)

// Clock stamps events with seconds since the session epoch. All
// trackers in a session share one clock so streams correlate by
// timestamp alone.
type Clock interface {
	Now() float64
}

// Tracker is the common lifecycle every modality implements.
type Tracker interface {
	// Name identifies the modality ("pointer", "screenshot", ...).
	Name() string
	// Start opens the adapter and launches the capture loop. A tracker
	// can only be started from the idle state.
	Start(ctx context.Context, sess *types.Session, clock Clock) error
	// Stop requests a cooperative shutdown and waits for the loop to
	// flush and exit, bounded by ctx.
	Stop(ctx context.Context) error
	// Status returns the current lifecycle state.
	Status() State
	// Count returns the number of events recorded so far.
	Count() int64
	// Err returns the error that moved the tracker to errored, if any.
	Err() error
}

// runner carries the lifecycle shared by all trackers: state guard,
// capture goroutine, cooperative stop, event counter.
type runner struct {
	name string

	mu     sync.Mutex
	state  State
	runErr error
	cancel context.CancelFunc
	done   chan struct{}

	count atomic.Int64
}

func newRunner(name string) runner {
	return runner{name: name, state: StateIdle}
}

func (r *runner) Name() string { return r.name }

func (r *runner) Status() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *runner) Count() int64 { return r.count.Load() }

func (r *runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

// begin transitions idle → running and launches loop in its own
// goroutine. The idle check, the adapter open, and the transition are
// one critical section so a racing Start or Stop cannot slip between
// them and double-open the adapter. An open failure leaves the tracker
// idle.
func (r *runner) begin(ctx context.Context, open func(context.Context) error, loop func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return hcierrors.New(hcierrors.ErrCategorySession, hcierrors.CodeTrackerNotIdle,
			r.name+" tracker is not idle")
	}

	if err := open(ctx); err != nil {
		return hcierrors.NewAdapterUnavailable(r.name, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.state = StateRunning
	r.runErr = nil
	r.cancel = cancel
	r.done = make(chan struct{})
	r.count.Store(0)

	go func() {
		err := loop(loopCtx)
		r.mu.Lock()
		if err != nil {
			r.runErr = err
			r.state = StateErrored
			log.Printf("tracker: %s loop failed: %v", r.name, err)
		} else {
			r.state = StateStopped
		}
		r.mu.Unlock()
		close(r.done)
	}()
	return nil
}

// halt implements Stop: running → stopping, cancel the loop, join it
// within the bound of ctx. An errored loop settles in stopped after the
// join; the loop error stays observable through Err.
func (r *runner) halt(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateIdle, StateStopped:
		r.mu.Unlock()
		return nil
	case StateRunning:
		r.state = StateStopping
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return hcierrors.NewInternalError(r.name+" tracker did not stop in time", ctx.Err())
	}

	r.mu.Lock()
	r.state = StateStopped
	err := r.runErr
	r.mu.Unlock()
	return err
}

// appendErrFatal decides what a buffer append failure means for the
// loop: constraint violations drop the event and keep capturing,
// storage failures end the session.
func appendErrFatal(name string, err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if hcierrors.IsConstraintViolation(err) {
		log.Printf("tracker: %s dropped event: %v", name, err)
		return false, nil
	}
	return true, err
}

// flushInterval guards against a zero interval from a hand-rolled
// config.
func flushInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// newTicker builds a ticker with a sane fallback for a zero interval.
func newTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = 5 * time.Second
	}
	return time.NewTicker(d)
}

// pump runs the loop shape shared by every tracker: a background ticker
// flush, the modality capture loop, then a final drain once the loop
// exits. A flush escalation from the ticker goroutine surfaces through
// flushErrs so the capture loop can abort.
func pump[T any](ctx context.Context, buf *buffer.Buffer[T], interval time.Duration,
	capture func(ctx context.Context, flushErrs <-chan error) error) error {
	flushErrs := make(chan error, 1)
	go func() {
		if err := buf.Run(ctx, interval); err != nil {
			flushErrs <- err
		}
	}()

	err := capture(ctx, flushErrs)
	ferr := buf.Flush(context.Background())
	if err != nil {
		return err
	}
	return ferr
}
