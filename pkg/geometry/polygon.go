package geometry

import (
	"image"
	"math"
)

// PolygonArea returns the unsigned area of a closed polygon (shoelace formula).
func PolygonArea(polygon []Point2D) float64 {
	if len(polygon) < 3 {
		return 0
	}
	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(sum) / 2
}

// ScalePoints returns a copy of the points scaled along each axis.
func ScalePoints(points []Point2D, sx, sy float64) []Point2D {
	out := make([]Point2D, len(points))
	for i, p := range points {
		out[i] = p.Scale(sx, sy)
	}
	return out
}

// FromImagePoints converts integer pixel vertices to Point2D.
func FromImagePoints(points []image.Point) []Point2D {
	out := make([]Point2D, len(points))
	for i, p := range points {
		out[i] = FromImagePoint(p)
	}
	return out
}

// ClonePoints returns an independent copy of points (nil stays nil).
func ClonePoints(points []Point2D) []Point2D {
	if points == nil {
		return nil
	}
	out := make([]Point2D, len(points))
	copy(out, points)
	return out
}
