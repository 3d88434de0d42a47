package heatmap

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"math"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Overlay composites the heatmap over a base screenshot at the given
// opacity. The heatmap is expected to share the base's dimensions; a
// smaller heatmap is composited at the origin.
func Overlay(base image.Image, heat *image.NRGBA, alpha float64) *image.NRGBA {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	bounds := base.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, base, bounds.Min, draw.Src)

	hb := heat.Bounds()
	for y := hb.Min.Y; y < hb.Max.Y && y < bounds.Max.Y; y++ {
		for x := hb.Min.X; x < hb.Max.X && x < bounds.Max.X; x++ {
			hi := heat.PixOffset(x, y)
			ha := float64(heat.Pix[hi+3]) / 255 * alpha
			if ha == 0 {
				continue
			}
			oi := out.PixOffset(x, y)
			out.Pix[oi] = blend(out.Pix[oi], heat.Pix[hi], ha)
			out.Pix[oi+1] = blend(out.Pix[oi+1], heat.Pix[hi+1], ha)
			out.Pix[oi+2] = blend(out.Pix[oi+2], heat.Pix[hi+2], ha)
		}
	}
	return out
}

func blend(under, over uint8, alpha float64) uint8 {
	return uint8(float64(under)*(1-alpha) + float64(over)*alpha + 0.5)
}

// clickMarkRadius is the ring radius, in pixels, drawn around each
// click on an overlay.
const clickMarkRadius = 8

// MarkClicks draws a ring around every click position so individual
// clicks stay visible on top of the density raster. Non-click events
// are ignored; off-canvas rings are clipped.
func MarkClicks(img *image.NRGBA, events []types.PointerEvent) {
	for _, e := range events {
		if e.Type != types.PointerClick {
			continue
		}
		drawRing(img, e.X, e.Y, clickMarkRadius)
	}
}

func drawRing(img *image.NRGBA, cx, cy, radius int) {
	bounds := img.Bounds()
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if x < bounds.Min.X || y < bounds.Min.Y || x >= bounds.Max.X || y >= bounds.Max.Y {
				continue
			}
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if d < float64(radius)-1.5 || d > float64(radius)+0.5 {
				continue
			}
			i := img.PixOffset(x, y)
			img.Pix[i] = 255
			img.Pix[i+1] = 0
			img.Pix[i+2] = 0
			img.Pix[i+3] = 255
		}
	}
}

// Comparison tiles two rasters side by side with a thin divider, for
// before/after or A/B heatmap comparison.
func Comparison(left, right image.Image) *image.NRGBA {
	const divider = 8

	lb, rb := left.Bounds(), right.Bounds()
	height := lb.Dy()
	if rb.Dy() > height {
		height = rb.Dy()
	}
	width := lb.Dx() + divider + rb.Dx()

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	// White canvas so shorter panels read as padded, not broken.
	for i := range out.Pix {
		out.Pix[i] = 255
	}

	draw.Draw(out, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, draw.Src)
	draw.Draw(out, image.Rect(lb.Dx()+divider, 0, width, rb.Dy()), right, rb.Min, draw.Src)
	return out
}

// EncodePNG serializes a raster deterministically.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, hcierrors.NewInternalError("encode heatmap png", err)
	}
	return buf.Bytes(), nil
}
