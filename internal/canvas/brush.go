package canvas

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// clipMargin is how far past the surface edge geometry is kept before a
// segment is trimmed. The rasterizer clips anything in between itself.
const clipMargin = 64.0

// brush renders round-capped line segments.
type brush struct {
	w, h int
	z    *vector.Rasterizer
}

func newBrush(w, h int) *brush {
	return &brush{w: w, h: h, z: vector.NewRasterizer(w, h)}
}

func (b *brush) stroke(dst draw.Image, seg domain.StrokeSegment) {
	src := image.NewUniform(seg.Params.Color.RGBA())
	r := seg.Params.StrokeWidthPx / 2
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return
	}
	if !finite(seg.From) || !finite(seg.To) {
		return
	}

	// Ends trimmed here sit at least clipMargin outside the surface, so their
	// caps and the cut edge of the quad never reach a visible pixel.
	m := clipMargin + r
	from, to, ok := clip(seg.From, seg.To, -m, -m, float64(b.w)+m, float64(b.h)+m)
	if !ok {
		return
	}

	dx, dy := to.X-from.X, to.Y-from.Y
	length := math.Hypot(dx, dy)
	if length > 0 {
		nx, ny := -dy/length*r, dx/length*r
		b.begin()
		b.moveTo(from.X+nx, from.Y+ny)
		b.lineTo(to.X+nx, to.Y+ny)
		b.lineTo(to.X-nx, to.Y-ny)
		b.lineTo(from.X-nx, from.Y-ny)
		b.z.ClosePath()
		b.z.Draw(dst, dst.Bounds(), src, image.Point{})
	}

	b.dot(dst, src, from, r)
	b.dot(dst, src, to, r)
}

func (b *brush) dot(dst draw.Image, src image.Image, c domain.Point, r float64) {
	k := r * kappa
	b.begin()
	b.moveTo(c.X+r, c.Y)
	b.cubeTo(c.X+r, c.Y+k, c.X+k, c.Y+r, c.X, c.Y+r)
	b.cubeTo(c.X-k, c.Y+r, c.X-r, c.Y+k, c.X-r, c.Y)
	b.cubeTo(c.X-r, c.Y-k, c.X-k, c.Y-r, c.X, c.Y-r)
	b.cubeTo(c.X+k, c.Y-r, c.X+r, c.Y-k, c.X+r, c.Y)
	b.z.ClosePath()
	b.z.Draw(dst, dst.Bounds(), src, image.Point{})
}

func (b *brush) begin() {
	b.z.Reset(b.w, b.h)
	b.z.DrawOp = draw.Over
}

func (b *brush) moveTo(x, y float64) {
	b.z.MoveTo(float32(x), float32(y))
}

func (b *brush) lineTo(x, y float64) {
	b.z.LineTo(float32(x), float32(y))
}

func (b *brush) cubeTo(x1, y1, x2, y2, x3, y3 float64) {
	b.z.CubeTo(float32(x1), float32(y1), float32(x2), float32(y2), float32(x3), float32(y3))
}

func finite(p domain.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// clip trims the segment a-b to the rectangle [minX,maxX]x[minY,maxY]
// (Liang-Barsky). It reports false when no part of the segment is inside.
func clip(a, b domain.Point, minX, minY, maxX, maxY float64) (domain.Point, domain.Point, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	for _, e := range [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return domain.Point{X: a.X + t0*dx, Y: a.Y + t0*dy},
		domain.Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}
