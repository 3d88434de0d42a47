package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/internal/store"
	"github.com/hcilog/hcilog/internal/tracker"
	"github.com/hcilog/hcilog/pkg/types"
)

// DefaultStopTimeout bounds how long End waits for trackers to flush
// and join.
const DefaultStopTimeout = 10 * time.Second

// Coordinator owns one recording session end to end: it creates the
// session row, starts the trackers against a shared clock, and closes
// the session exactly once.
type Coordinator struct {
	store       *store.Store
	trackers    []tracker.Tracker
	stopTimeout time.Duration

	mu       sync.Mutex
	sess     *types.Session
	clock    *Clock
	degraded []string
	ended    bool
}

// NewCoordinator builds a coordinator over the given trackers.
func NewCoordinator(st *store.Store, trackers ...tracker.Tracker) *Coordinator {
	return &Coordinator{
		store:       st,
		trackers:    trackers,
		stopTimeout: DefaultStopTimeout,
	}
}

// SetStopTimeout overrides the bounded wait used by End.
func (c *Coordinator) SetStopTimeout(d time.Duration) {
	if d > 0 {
		c.stopTimeout = d
	}
}

// Begin creates the session and starts every tracker concurrently. A
// tracker whose adapter is unavailable degrades the session (noted in
// the session row) without affecting its siblings; Begin fails only
// when the session row itself cannot be created.
func (c *Coordinator) Begin(ctx context.Context, meta types.SessionMeta) (*types.Session, error) {
	c.mu.Lock()
	if c.sess != nil && !c.ended {
		c.mu.Unlock()
		return nil, hcierrors.New(hcierrors.ErrCategorySession, hcierrors.CodeTrackerNotIdle,
			"a session is already active")
	}
	c.mu.Unlock()

	sess, err := c.store.CreateSession(ctx, meta)
	if err != nil {
		return nil, err
	}
	clock := NewClock()

	var (
		degradedMu sync.Mutex
		degraded   []string
	)
	g := new(errgroup.Group)
	for _, tr := range c.trackers {
		tr := tr
		g.Go(func() error {
			if err := tr.Start(ctx, sess, clock); err != nil {
				log.Printf("session: %s tracker degraded: %v", tr.Name(), err)
				degradedMu.Lock()
				degraded = append(degraded, tr.Name())
				degradedMu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	sort.Strings(degraded)

	if len(degraded) > 0 {
		note := "degraded trackers: " + strings.Join(degraded, ", ")
		if meta.Notes != "" {
			note = meta.Notes + "; " + note
		}
		if err := c.store.UpdateSessionNotes(ctx, sess.ID, note); err != nil {
			log.Printf("session: could not record degraded trackers: %v", err)
		}
		sess.Notes = note
	}

	c.mu.Lock()
	c.sess = sess
	c.clock = clock
	c.degraded = degraded
	c.ended = false
	c.mu.Unlock()

	log.Printf("session: started %d (%s), %d/%d trackers running",
		sess.ID, sess.UUID, len(c.trackers)-len(degraded), len(c.trackers))
	return sess, nil
}

// End stops every tracker, waits for the final flushes within the stop
// timeout, and closes the session row exactly once. The session ends in
// error status when any tracker failed mid-run; a merely degraded
// session still completes.
func (c *Coordinator) End(ctx context.Context) (*types.Session, error) {
	c.mu.Lock()
	sess, clock := c.sess, c.clock
	if sess == nil || c.ended {
		c.mu.Unlock()
		return nil, hcierrors.New(hcierrors.ErrCategorySession, hcierrors.CodeSessionClosed,
			"no active session")
	}
	c.ended = true
	c.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, c.stopTimeout)
	defer cancel()

	// Every tracker gets a stop attempt even if an earlier one fails.
	var trackerErr error
	for _, tr := range c.trackers {
		if err := tr.Stop(stopCtx); err != nil && trackerErr == nil {
			trackerErr = fmt.Errorf("%s tracker: %w", tr.Name(), err)
		}
	}

	status := types.StatusCompleted
	if trackerErr != nil {
		status = types.StatusError
		log.Printf("session: %d ends in error: %v", sess.ID, trackerErr)
	}

	endTime := sess.StartTime + clock.Now()
	if err := c.store.EndSession(ctx, sess.ID, endTime, status); err != nil {
		return nil, err
	}

	final, err := c.store.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	log.Printf("session: ended %d (%s)", final.ID, final.Status)
	return final, trackerErr
}

// Session returns the active session, or nil when none is running.
func (c *Coordinator) Session() *types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return nil
	}
	return c.sess
}

// Degraded lists trackers that failed to start for the active session.
func (c *Coordinator) Degraded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.degraded))
	copy(out, c.degraded)
	return out
}

// Status reports the lifecycle state of every tracker by name.
func (c *Coordinator) Status() map[string]tracker.State {
	out := make(map[string]tracker.State, len(c.trackers))
	for _, tr := range c.trackers {
		out[tr.Name()] = tr.Status()
	}
	return out
}

// Counts reports the events recorded per tracker so far.
func (c *Coordinator) Counts() map[string]int64 {
	out := make(map[string]int64, len(c.trackers))
	for _, tr := range c.trackers {
		out[tr.Name()] = tr.Count()
	}
	return out
}
