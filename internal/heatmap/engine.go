package heatmap

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log"
	"math"
	"time"

	"github.com/hcilog/hcilog/internal/artifact"
	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/internal/store"
	"github.com/hcilog/hcilog/pkg/types"
)

// Engine renders heatmap artifacts for recorded sessions. Rasters are
// written to the artifact store under the session's heatmaps directory.
type Engine struct {
	store *store.Store
	art   artifact.Store
	opts  Options

	// now stamps output artifact names; swappable in tests.
	now func() time.Time
}

// NewEngine builds a renderer over the session store and artifact
// backend.
func NewEngine(st *store.Store, art artifact.Store, opts Options) *Engine {
	return &Engine{store: st, art: art, opts: opts, now: time.Now}
}

// canvas returns the session's render geometry.
func canvas(sess *types.Session) (int, int) {
	w, h := sess.ScreenWidth, sess.ScreenHeight
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	return w, h
}

// RenderPointer renders the full pointer-activity heatmap and returns
// the artifact path.
func (e *Engine) RenderPointer(ctx context.Context, sessionID int64) (string, error) {
	return e.renderEvents(ctx, sessionID, "pointer", "")
}

// RenderClicks renders a clicks-only heatmap.
func (e *Engine) RenderClicks(ctx context.Context, sessionID int64) (string, error) {
	return e.renderEvents(ctx, sessionID, "clicks", types.PointerClick)
}

func (e *Engine) renderEvents(ctx context.Context, sessionID int64, kind string, eventType types.PointerEventType) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	events, err := e.store.QueryPointerEvents(ctx, sessionID, eventType, store.TimeRange{})
	if err != nil {
		return "", err
	}

	w, h := canvas(sess)
	img, err := Build(events, w, h, e.opts)
	if err != nil {
		return "", err
	}
	return e.save(ctx, sess.UUID, kind, img, len(events))
}

// RenderGaze renders the gaze-density heatmap.
func (e *Engine) RenderGaze(ctx context.Context, sessionID int64) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	samples, err := e.store.QueryGazeSamples(ctx, sessionID, store.TimeRange{})
	if err != nil {
		return "", err
	}

	w, h := canvas(sess)
	g, err := AccumulateGaze(samples, w, h, e.opts)
	if err != nil {
		return "", err
	}
	g.Smooth(e.opts.BlurRadius)
	g.Normalize()
	return e.save(ctx, sess.UUID, "gaze", g.Render(), len(samples))
}

// overlayWindow is the span of pointer activity, in seconds, composited
// over a screenshot. Only events in the window ending at the
// screenshot's timestamp contribute, so the overlay shows the activity
// that led up to that frame.
const overlayWindow = 5.0

// RenderOverlay composites the pointer heatmap over the screenshot
// nearest to the given session timestamp. Clicks inside the window are
// marked individually on top of the density raster.
func (e *Engine) RenderOverlay(ctx context.Context, sessionID int64, at float64) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	shot, err := e.nearestScreenshot(ctx, sessionID, at)
	if err != nil {
		return "", err
	}

	r, err := e.art.Open(ctx, shot.FilePath)
	if err != nil {
		return "", hcierrors.NewStorageUnavailable("open screenshot artifact", err)
	}
	defer r.Close()
	base, err := png.Decode(r)
	if err != nil {
		return "", hcierrors.NewInternalError("decode screenshot", err)
	}

	tr := store.TimeRange{End: shot.Timestamp}
	if start := shot.Timestamp - overlayWindow; start > 0 {
		tr.Start = start
	}
	events, err := e.store.QueryPointerEvents(ctx, sessionID, "", tr)
	if err != nil {
		return "", err
	}
	bounds := base.Bounds()
	heat, err := Build(events, bounds.Dx(), bounds.Dy(), e.opts)
	if err != nil {
		return "", err
	}

	out := Overlay(base, heat, e.opts.OverlayAlpha)
	MarkClicks(out, events)
	return e.save(ctx, sess.UUID, "overlay", out, len(events))
}

// RenderComparison renders the pointer heatmaps of two sessions side by
// side; the artifact lands under the first session.
func (e *Engine) RenderComparison(ctx context.Context, leftID, rightID int64) (string, error) {
	left, err := e.buildPointer(ctx, leftID)
	if err != nil {
		return "", err
	}
	right, err := e.buildPointer(ctx, rightID)
	if err != nil {
		return "", err
	}

	sess, err := e.store.GetSession(ctx, leftID)
	if err != nil {
		return "", err
	}
	return e.save(ctx, sess.UUID, "comparison", Comparison(left, right), 0)
}

// RenderSplit tiles the all-activity heatmap next to the clicks-only
// heatmap of the same session.
func (e *Engine) RenderSplit(ctx context.Context, sessionID int64) (string, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	events, err := e.store.QueryPointerEvents(ctx, sessionID, "", store.TimeRange{})
	if err != nil {
		return "", err
	}
	clicks, err := e.store.QueryPointerEvents(ctx, sessionID, types.PointerClick, store.TimeRange{})
	if err != nil {
		return "", err
	}

	w, h := canvas(sess)
	all, err := Build(events, w, h, e.opts)
	if err != nil {
		return "", err
	}
	clicksOnly, err := Build(clicks, w, h, e.opts)
	if err != nil {
		return "", err
	}
	return e.save(ctx, sess.UUID, "split", Comparison(all, clicksOnly), len(events))
}

func (e *Engine) buildPointer(ctx context.Context, sessionID int64) (*image.NRGBA, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := e.store.QueryPointerEvents(ctx, sessionID, "", store.TimeRange{})
	if err != nil {
		return nil, err
	}
	w, h := canvas(sess)
	return Build(events, w, h, e.opts)
}

// nearestScreenshot picks the screenshot whose timestamp is closest to
// at. With at < 0 the earliest screenshot wins.
func (e *Engine) nearestScreenshot(ctx context.Context, sessionID int64, at float64) (*types.ScreenshotEvent, error) {
	shots, err := e.store.QueryScreenshots(ctx, sessionID, store.TimeRange{})
	if err != nil {
		return nil, err
	}
	if len(shots) == 0 {
		return nil, hcierrors.New(hcierrors.ErrCategoryRender, hcierrors.CodeInvalidCanvas,
			"session has no screenshots to overlay")
	}
	if at < 0 {
		return &shots[0], nil
	}

	best := 0
	bestDist := math.Abs(shots[0].Timestamp - at)
	for i, s := range shots[1:] {
		if d := math.Abs(s.Timestamp - at); d < bestDist {
			best, bestDist = i+1, d
		}
	}
	return &shots[best], nil
}

func (e *Engine) save(ctx context.Context, sessionUUID, kind string, img image.Image, events int) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	objectPath := artifact.HeatmapPath(sessionUUID, kind, e.now())
	if _, err := e.art.Save(ctx, bytes.NewReader(data), objectPath); err != nil {
		return "", hcierrors.NewStorageUnavailable("save heatmap artifact", err)
	}
	log.Printf("heatmap: rendered %s for session %s (%d events)", kind, sessionUUID, events)
	return objectPath, nil
}
