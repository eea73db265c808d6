// Package canvas implements the stroke state machine and its raster surface.
// The raster is the state: segments are rendered as soon as they are appended.
package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

// State of the stroke state machine.
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	if s == Drawing {
		return "drawing"
	}
	return "idle"
}

// Viewport is the size the surface is displayed at by the client layout.
type Viewport struct {
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
}

// Surface is not safe for concurrent use; callers serialize access.
type Surface struct {
	width  int
	height int
	img    *image.RGBA
	brush  *brush

	state    State
	last     domain.Point
	start    domain.DrawingParameters
	segments []domain.StrokeSegment
}

// New creates a transparent surface with the given backing resolution.
func New(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas: invalid size %dx%d: %w", width, height, domain.ErrInvalidInput)
	}
	return &Surface{
		width:  width,
		height: height,
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		brush:  newBrush(width, height),
	}, nil
}

// Size returns the backing resolution.
func (s *Surface) Size() (int, int) {
	return s.width, s.height
}

// State returns the current state.
func (s *Surface) State() State {
	return s.state
}

// ToSurface rescales a display-space point into raster space using
// surfaceSize/displayedSize per axis. A zero display size leaves the axis as is.
func (s *Surface) ToSurface(p domain.Point, vp Viewport) domain.Point {
	out := p
	if vp.DisplayWidth > 0 {
		out.X = p.X * float64(s.width) / vp.DisplayWidth
	}
	if vp.DisplayHeight > 0 {
		out.Y = p.Y * float64(s.height) / vp.DisplayHeight
	}
	return out
}

// PointerDown begins a new path at p. Nothing is drawn until the first move.
func (s *Surface) PointerDown(p domain.Point, params domain.DrawingParameters) {
	s.state = Drawing
	s.last = p
	s.start = params
}

// PointerMove appends and renders a segment from the previous point to p.
// It reports false when no stroke is in progress.
func (s *Surface) PointerMove(p domain.Point, params domain.DrawingParameters) (domain.StrokeSegment, bool) {
	if s.state != Drawing {
		return domain.StrokeSegment{}, false
	}
	seg := domain.StrokeSegment{From: s.last, To: p, Params: params}
	s.brush.stroke(s.img, seg)
	s.segments = append(s.segments, seg)
	s.last = p
	return seg, true
}

// PointerUp closes the current path.
func (s *Surface) PointerUp() {
	s.state = Idle
}

// PointerLeave closes the current path when the pointer exits the surface.
func (s *Surface) PointerLeave() {
	s.state = Idle
}

// StartParameters returns the parameters sampled when the current path began.
func (s *Surface) StartParameters() domain.DrawingParameters {
	return s.start
}

// Clear wipes the raster and the segment log. Calling it on an empty surface
// does nothing.
func (s *Surface) Clear() {
	if len(s.segments) == 0 {
		return
	}
	for i := range s.img.Pix {
		s.img.Pix[i] = 0
	}
	s.segments = nil
}

// Segments returns a copy of the segments drawn since the last Clear.
func (s *Surface) Segments() []domain.StrokeSegment {
	out := make([]domain.StrokeSegment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Len is the number of segments drawn since the last Clear.
func (s *Surface) Len() int {
	return len(s.segments)
}

// Empty reports whether nothing has been drawn.
func (s *Surface) Empty() bool {
	return len(s.segments) == 0
}

// Image returns a copy of the raster, composited over white.
func (s *Surface) Image() *image.RGBA {
	out := image.NewRGBA(s.img.Bounds())
	xdraw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(out, out.Bounds(), s.img, image.Point{}, xdraw.Over)
	return out
}

// Snapshot encodes the surface as PNG. When maxDim is positive and the surface
// is larger, the image is scaled down preserving aspect ratio.
func (s *Surface) Snapshot(maxDim int) ([]byte, error) {
	var img image.Image = s.Image()
	if maxDim > 0 && (s.width > maxDim || s.height > maxDim) {
		img = scaleToFit(img, maxDim)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("canvas: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func scaleToFit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
