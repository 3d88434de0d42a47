// Package heatmap renders spatial activity visualizations from recorded
// pointer streams. Rendering is deterministic: the same events and
// options always produce byte-identical output.
package heatmap

import (
	"image"
	"math"

	hcierrors "github.com/hcilog/hcilog/internal/errors"
	"github.com/hcilog/hcilog/pkg/types"
)

// Options control density binning and rendering.
type Options struct {
	// CellSize is the grid sub-sampling factor in pixels.
	CellSize int
	// BlurRadius is the Gaussian smoothing radius in grid cells.
	BlurRadius int
	// ClickWeight is the density contribution of a click relative to a
	// move.
	ClickWeight float64
	// OverlayAlpha is the heatmap opacity when composited over a
	// screenshot.
	OverlayAlpha float64
}

// DefaultOptions mirror the renderer defaults.
func DefaultOptions() Options {
	return Options{
		CellSize:     4,
		BlurRadius:   20,
		ClickWeight:  3,
		OverlayAlpha: 0.6,
	}
}

// Grid is a sub-sampled density grid over a pixel canvas.
type Grid struct {
	Cols, Rows    int
	CellSize      int
	Width, Height int

	cells []float64
}

// NewGrid allocates a density grid for a width x height canvas.
func NewGrid(width, height, cellSize int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, hcierrors.New(hcierrors.ErrCategoryRender, hcierrors.CodeInvalidCanvas,
			"canvas dimensions must be positive")
	}
	if cellSize <= 0 {
		cellSize = 1
	}
	cols := (width + cellSize - 1) / cellSize
	rows := (height + cellSize - 1) / cellSize
	return &Grid{
		Cols:     cols,
		Rows:     rows,
		CellSize: cellSize,
		Width:    width,
		Height:   height,
		cells:    make([]float64, cols*rows),
	}, nil
}

// Add accumulates weight at a pixel position. Out-of-bounds points are
// clipped, never wrapped.
func (g *Grid) Add(x, y int, weight float64) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}
	g.cells[(y/g.CellSize)*g.Cols+x/g.CellSize] += weight
}

// At returns the density of the cell containing pixel (x, y).
func (g *Grid) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.cells[(y/g.CellSize)*g.Cols+x/g.CellSize]
}

// Accumulate bins pointer events into a fresh grid. Moves contribute
// weight 1, clicks ClickWeight; scroll events carry no position
// semantics for density and are skipped.
func Accumulate(events []types.PointerEvent, width, height int, opts Options) (*Grid, error) {
	g, err := NewGrid(width, height, opts.CellSize)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		switch e.Type {
		case types.PointerMove:
			g.Add(e.X, e.Y, 1)
		case types.PointerClick:
			g.Add(e.X, e.Y, opts.ClickWeight)
		}
	}
	return g, nil
}

// AccumulateGaze bins gaze samples, treating gaze coordinates as
// normalized [0,1] screen positions.
func AccumulateGaze(samples []types.GazeSample, width, height int, opts Options) (*Grid, error) {
	g, err := NewGrid(width, height, opts.CellSize)
	if err != nil {
		return nil, err
	}
	for _, s := range samples {
		x := int(s.GazeX * float64(width))
		y := int(s.GazeY * float64(height))
		g.Add(x, y, 1)
	}
	return g, nil
}

// Smooth applies a separable Gaussian blur with sigma = radius/2. A
// zero radius leaves the grid untouched.
func (g *Grid) Smooth(radius int) {
	if radius <= 0 {
		return
	}
	kernel := gaussianKernel(radius)

	// Horizontal pass.
	tmp := make([]float64, len(g.cells))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				c := col + k
				if c < 0 || c >= g.Cols {
					continue
				}
				sum += g.cells[row*g.Cols+c] * kernel[k+radius]
			}
			tmp[row*g.Cols+col] = sum
		}
	}

	// Vertical pass.
	for col := 0; col < g.Cols; col++ {
		for row := 0; row < g.Rows; row++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				r := row + k
				if r < 0 || r >= g.Rows {
					continue
				}
				sum += tmp[r*g.Cols+col] * kernel[k+radius]
			}
			g.cells[row*g.Cols+col] = sum
		}
	}
}

// Normalize scales densities to [0,1]. An all-zero grid stays all-zero
// and renders as a valid, empty raster.
func (g *Grid) Normalize() {
	var max float64
	for _, v := range g.cells {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return
	}
	for i := range g.cells {
		g.cells[i] /= max
	}
}

// Render maps the normalized grid through the colormap onto a
// full-resolution RGBA raster. Intensity drives both color and opacity,
// so empty regions stay transparent.
func (g *Grid) Render() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := mapColor(g.At(x, y))
			i := img.PixOffset(x, y)
			img.Pix[i] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}
	return img
}

// Build runs the full pipeline: accumulate, smooth, normalize, render.
func Build(events []types.PointerEvent, width, height int, opts Options) (*image.NRGBA, error) {
	g, err := Accumulate(events, width, height, opts)
	if err != nil {
		return nil, err
	}
	g.Smooth(opts.BlurRadius)
	g.Normalize()
	return g.Render(), nil
}

// gaussianKernel returns a normalized 1D kernel of 2*radius+1 taps with
// sigma = radius/2.
func gaussianKernel(radius int) []float64 {
	sigma := float64(radius) / 2
	if sigma <= 0 {
		sigma = 1
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}
