package heatmap

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hcilog/hcilog/pkg/types"
)

// Arbitrary event mixes, including off-canvas points, must always
// produce a normalized raster whose alpha channel stays within the
// colormap's range and whose rendering never depends on event count.
func TestBuildHandlesArbitraryEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("render stays in range and deterministic", prop.ForAll(
		func(coords []int, clickMask int) bool {
			var events []types.PointerEvent
			for i := 0; i+1 < len(coords); i += 2 {
				e := move(coords[i], coords[i+1])
				if clickMask&(1<<(uint(i/2)%16)) != 0 {
					e.Type = types.PointerClick
				}
				events = append(events, e)
			}

			opts := Options{CellSize: 3, BlurRadius: 2, ClickWeight: 3}
			first, err := Build(events, 64, 48, opts)
			if err != nil {
				return false
			}
			second, err := Build(events, 64, 48, opts)
			if err != nil {
				return false
			}

			a, err := EncodePNG(first)
			if err != nil {
				return false
			}
			b, err := EncodePNG(second)
			if err != nil {
				return false
			}
			if string(a) != string(b) {
				return false
			}

			// Normalization caps every cell at 1, so no pixel may
			// exceed the hottest gradient stop.
			for i := 0; i+3 < len(first.Pix); i += 4 {
				if first.Pix[i+3] == 0 && (first.Pix[i] != 0 || first.Pix[i+1] != 0 || first.Pix[i+2] != 0) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-20, 100)),
		gen.IntRange(0, 1<<16-1),
	))

	properties.TestingRun(t)
}
