// Package overlay draws an image's labels over the image for visual review.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"labeltool/internal/label"
	"labeltool/pkg/colorutil"
	"labeltool/pkg/geometry"
)

// Options configures how labels are drawn.
type Options struct {
	LineWidth   int     // bbox and polygon outline width in pixels
	VertexSize  int     // polygon vertex marker radius, 0 to hide
	MaskOpacity float64 // 0..1 fill opacity of mask labels
	Outline     bool    // darker edge around each outline
}

// DefaultOptions returns the preview defaults.
func DefaultOptions() Options {
	return Options{
		LineWidth:   2,
		VertexSize:  3,
		MaskOpacity: 0.4,
		Outline:     true,
	}
}

// Render draws labels on a copy of base. Masks go first so outlines stay
// visible on top of them.
func Render(base image.Image, labels []label.Label, opts Options) *image.RGBA {
	b := base.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), base, b.Min, draw.Src)

	for _, l := range labels {
		if l.Kind == label.KindMask {
			fillMask(img, l.Mask, labelColor(l), opts.MaskOpacity)
		}
	}
	for _, l := range labels {
		c := labelColor(l)
		switch l.Kind {
		case label.KindBBox:
			r := l.Bounds()
			if opts.Outline {
				drawRect(img, r, opts.LineWidth+2, darken(c, 0.4))
			}
			drawRect(img, r, opts.LineWidth, c)
		case label.KindPolygon:
			if opts.Outline {
				drawPolygon(img, l.Points, opts.LineWidth+2, darken(c, 0.4))
			}
			drawPolygon(img, l.Points, opts.LineWidth, c)
			if opts.VertexSize > 0 {
				area := grow(img.Bounds(), opts.VertexSize)
				for _, p := range l.Points {
					if area.Contains(p) {
						q := p.Round()
						fillCircle(img, q.X, q.Y, opts.VertexSize, c)
					}
				}
			}
		}
	}
	return img
}

func labelColor(l label.Label) color.RGBA {
	c, err := colorutil.ParseHex(l.ColorHex())
	if err != nil {
		c, _ = colorutil.ParseHex(colorutil.ForClass(l.ClassID))
	}
	return c
}

// fillMask alpha-blends c over every set mask pixel. Masks whose size differs
// from the image are clipped.
func fillMask(img *image.RGBA, m *label.Mask, c color.RGBA, opacity float64) {
	if m == nil {
		return
	}
	b := img.Bounds()
	for y := 0; y < m.Height && y < b.Max.Y; y++ {
		for x := 0; x < m.Width && x < b.Max.X; x++ {
			if m.At(x, y) == 0 {
				continue
			}
			img.SetRGBA(x, y, blend(img.RGBAAt(x, y), c, opacity))
		}
	}
}

func blend(dst, src color.RGBA, alpha float64) color.RGBA {
	alpha = clamp(alpha, 0, 1)
	mix := func(d, s uint8) uint8 {
		return uint8(math.Round(float64(s)*alpha + float64(d)*(1-alpha)))
	}
	return color.RGBA{R: mix(dst.R, src.R), G: mix(dst.G, src.G), B: mix(dst.B, src.B), A: 255}
}

func drawPolygon(img *image.RGBA, pts []geometry.Point2D, width int, c color.RGBA) {
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		drawThickLine(img, p.X, p.Y, q.X, q.Y, width, c)
	}
}

// drawRect draws a rectangle outline of the given width, growing inward.
// Edges far outside the image are pulled in to just past its border.
func drawRect(img *image.RGBA, r geometry.Rect, width int, c color.RGBA) {
	if width < 1 {
		width = 1
	}
	b := img.Bounds()
	x1, x2 := clampCoord(r.X, b.Min.X-width-1, b.Max.X+width), clampCoord(r.MaxX(), b.Min.X-width-1, b.Max.X+width)
	y1, y2 := clampCoord(r.Y, b.Min.Y-width-1, b.Max.Y+width), clampCoord(r.MaxY(), b.Min.Y-width-1, b.Max.Y+width)
	for w := 0; w < width; w++ {
		for x := max(x1+w, b.Min.X); x <= min(x2-w, b.Max.X-1); x++ {
			set(img, x, y1+w, c)
			set(img, x, y2-w, c)
		}
		for y := max(y1+w, b.Min.Y); y <= min(y2-w, b.Max.Y-1); y++ {
			set(img, x1+w, y, c)
			set(img, x2-w, y, c)
		}
	}
}

// drawThickLine draws parallel Bresenham lines across the stroke width. Each
// line is clipped to the image first, so the work is bounded by the image
// size whatever the coordinates.
func drawThickLine(img *image.RGBA, x1, y1, x2, y2 float64, thickness int, c color.RGBA) {
	area := grow(img.Bounds(), 1)
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		if p := (geometry.Point2D{X: x1, Y: y1}); area.Contains(p) {
			set(img, int(x1), int(y1), c)
		}
		return
	}
	px, py := -dy/length, dx/length
	half := float64(thickness) / 2
	for t := -half; t <= half; t++ {
		ax, ay, bx, by, ok := clipSegment(x1+px*t, y1+py*t, x2+px*t, y2+py*t, area)
		if ok {
			drawLine(img, int(ax), int(ay), int(bx), int(by), c)
		}
	}
}

// clipSegment clips the segment to r (Liang-Barsky). ok is false when nothing
// of the segment lies inside r or a coordinate is not finite.
func clipSegment(x1, y1, x2, y2 float64, r geometry.Rect) (ax, ay, bx, by float64, ok bool) {
	for _, v := range []float64{x1, y1, x2, y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, false
		}
	}
	dx, dy := x2-x1, y2-y1
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, x1 - r.X},
		{dx, r.MaxX() - x1},
		{-dy, y1 - r.Y},
		{dy, r.MaxY() - y1},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return x1 + t0*dx, y1 + t0*dy, x1 + t1*dx, y1 + t1*dy, true
}

func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		set(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				set(img, x, y, c)
			}
		}
	}
}

func set(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * (1 - factor)),
		G: uint8(float64(c.G) * (1 - factor)),
		B: uint8(float64(c.B) * (1 - factor)),
		A: c.A,
	}
}

// grow returns the image bounds extended by n pixels on every side.
func grow(b image.Rectangle, n int) geometry.Rect {
	return geometry.RectFromCorners(float64(b.Min.X-n), float64(b.Min.Y-n), float64(b.Max.X+n), float64(b.Max.Y+n))
}

// clampCoord converts v to a pixel coordinate within [lo, hi]; NaN maps to lo.
func clampCoord(v float64, lo, hi int) int {
	if !(v >= float64(lo)) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int(v)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
