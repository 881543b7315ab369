package codec

import (
	"image"
	"runtime"

	"gocv.io/x/gocv"

	"labeltool/internal/label"
	"labeltool/internal/logging"
	"labeltool/pkg/geometry"
)

// maskMat wraps a binarized copy of m in a single-channel Mat. The returned
// buffer backs the Mat and must stay alive until the Mat is closed.
func maskMat(m *label.Mask) (gocv.Mat, []byte, error) {
	buf := make([]byte, len(m.Pix))
	for i, v := range m.Pix {
		if v > 0 {
			buf[i] = 255
		}
	}
	mat, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, buf)
	return mat, buf, err
}

// largestContour picks the external contour with the largest area. Equal areas
// are resolved by the topmost, then leftmost, bounding-rect origin, and after
// that by discovery order.
func largestContour(contours gocv.PointsVector) int {
	best := -1
	var bestArea float64
	var bestRect image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		rect := gocv.BoundingRect(c)
		switch {
		case best < 0, area > bestArea:
		case area == bestArea && (rect.Min.Y < bestRect.Min.Y ||
			(rect.Min.Y == bestRect.Min.Y && rect.Min.X < bestRect.Min.X)):
		default:
			continue
		}
		best, bestArea, bestRect = i, area, rect
	}
	return best
}

// MaskToPolygon extracts the largest external contour of mask and simplifies
// it with epsilon = epsRatio * perimeter. Fewer than three resulting vertices
// yield nil.
func MaskToPolygon(mask *label.Mask, epsRatio float64) []geometry.Point2D {
	if mask == nil || mask.Width <= 0 || mask.Height <= 0 || mask.Empty() {
		return nil
	}
	mat, buf, err := maskMat(mask)
	if err != nil {
		logging.ForService("codec").Warn("mask to mat conversion failed", "error", err)
		return nil
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	runtime.KeepAlive(buf)

	idx := largestContour(contours)
	if idx < 0 {
		return nil
	}
	contour := contours.At(idx)
	epsilon := epsRatio * gocv.ArcLength(contour, true)
	approx := gocv.ApproxPolyDP(contour, epsilon, true)
	defer approx.Close()

	if approx.Size() < 3 {
		return nil
	}
	return geometry.FromImagePoints(approx.ToPoints())
}
