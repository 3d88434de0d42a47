package heatmap

import "image/color"

// Gradient stops from cold to hot. Intensities interpolate linearly
// between adjacent stops.
var gradientStops = []color.NRGBA{
	{R: 0, G: 0, B: 255},   // blue
	{R: 0, G: 255, B: 255}, // cyan
	{R: 0, G: 255, B: 0},   // green
	{R: 255, G: 255, B: 0}, // yellow
	{R: 255, G: 0, B: 0},   // red
}

// mapColor converts a normalized intensity into a gradient color whose
// opacity tracks the intensity. Zero intensity is fully transparent.
func mapColor(t float64) color.NRGBA {
	if t <= 0 {
		return color.NRGBA{}
	}
	if t > 1 {
		t = 1
	}

	segments := len(gradientStops) - 1
	pos := t * float64(segments)
	idx := int(pos)
	if idx >= segments {
		idx = segments - 1
	}
	frac := pos - float64(idx)

	lo, hi := gradientStops[idx], gradientStops[idx+1]
	return color.NRGBA{
		R: lerpByte(lo.R, hi.R, frac),
		G: lerpByte(lo.G, hi.G, frac),
		B: lerpByte(lo.B, hi.B, frac),
		A: uint8(t*255 + 0.5),
	}
}

func lerpByte(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
