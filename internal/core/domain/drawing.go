package domain

import (
	"image/color"
	"math"
)

// AudioSample is the latest (volume, pitch) pair produced by the sampling loop.
type AudioSample struct {
	Volume  float64 `json:"volume"`
	PitchHz float64 `json:"pitch_hz"`
}

// Point is a position in raster-surface space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HSL is a color in hue/saturation/lightness form. Hue is in degrees and may
// fall outside [0,360); consumers wrap it with Normalized.
type HSL struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Lightness  float64 `json:"lightness"`
}

// Normalized wraps the hue into [0,360) and clamps saturation and lightness
// into [0,100].
func (c HSL) Normalized() HSL {
	h := math.Mod(c.Hue, 360)
	if h < 0 {
		h += 360
	}
	if math.IsNaN(h) || h >= 360 {
		h = 0
	}
	return HSL{
		Hue:        h,
		Saturation: clamp(c.Saturation, 0, 100),
		Lightness:  clamp(c.Lightness, 0, 100),
	}
}

// RGBA converts the color to an opaque 8-bit RGBA value.
func (c HSL) RGBA() color.RGBA {
	n := c.Normalized()
	s := n.Saturation / 100
	l := n.Lightness / 100

	chroma := (1 - math.Abs(2*l-1)) * s
	hp := n.Hue / 60
	x := chroma * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = chroma, x, 0
	case hp < 2:
		r, g, b = x, chroma, 0
	case hp < 3:
		r, g, b = 0, chroma, x
	case hp < 4:
		r, g, b = 0, x, chroma
	case hp < 5:
		r, g, b = x, 0, chroma
	default:
		r, g, b = chroma, 0, x
	}
	m := l - chroma/2
	return color.RGBA{
		R: to8(r + m),
		G: to8(g + m),
		B: to8(b + m),
		A: 0xff,
	}
}

// DrawingParameters is the width and color snapshot used for one segment.
type DrawingParameters struct {
	StrokeWidthPx float64 `json:"stroke_width_px"`
	Color         HSL     `json:"color"`
}

// StrokeSegment is one drawn piece of a stroke path. Segments are immutable
// once appended.
type StrokeSegment struct {
	From   Point             `json:"from"`
	To     Point             `json:"to"`
	Params DrawingParameters `json:"params"`
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp(v, 0, 1) * 255))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
