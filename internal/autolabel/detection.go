// Package autolabel turns model predictions into labels. Inference itself is
// an external collaborator behind the Predictor interface; this package only
// maps its output shape onto label values and drives batches of images.
package autolabel

import (
	"context"
	"image"
	"strconv"

	"github.com/disintegration/imaging"

	"labeltool/internal/classes"
	"labeltool/internal/codec"
	"labeltool/internal/label"
	"labeltool/pkg/geometry"
)

// InstanceEpsilon is the contour simplification ratio for instance masks.
const InstanceEpsilon = 0.002

// Detection is one model output. Exactly one geometry field is expected to be
// set; if several are, each produces its own label.
type Detection struct {
	ClassID    int                `json:"class_id"`
	ClassName  string             `json:"class_name,omitempty"`
	Confidence float64            `json:"confidence"`
	Box        []float64          `json:"box,omitempty"`     // x1, y1, x2, y2 in image pixels
	Polygon    []geometry.Point2D `json:"polygon,omitempty"` // image pixels
	Instance   *label.Mask        `json:"-"`                 // instance mask, may be at model resolution
	Segment    *label.Mask        `json:"-"`                 // semantic mask, kept as a mask label
}

// Prediction is the result for one image.
type Prediction struct {
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Names      map[int]string `json:"names,omitempty"`
	Detections []Detection    `json:"detections"`
}

// Predictor runs inference on one image.
type Predictor interface {
	Predict(ctx context.Context, imagePath string) (Prediction, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, imagePath string) (Prediction, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, imagePath string) (Prediction, error) {
	return f(ctx, imagePath)
}

// Options control the mapping from detections to labels.
type Options struct {
	Threshold float64          // detections below this confidence are dropped
	Lookup    classes.Lookup   // project class table, optional
	Registry  classes.Registry // registers model class names unknown to the project, optional
}

func (o Options) resolve(d Detection, names map[int]string) (int, string) {
	name := d.ClassName
	if name == "" {
		if n, ok := names[d.ClassID]; ok {
			name = n
		} else {
			name = strconv.Itoa(d.ClassID)
		}
	}
	if o.Lookup != nil {
		if id, ok := o.Lookup.ID(name); ok {
			return id, name
		}
	}
	if o.Registry != nil {
		return o.Registry.Register(name), name
	}
	return d.ClassID, name
}

// ToLabels converts a prediction into labels in image coordinates. Boxes
// become bbox labels, polygons and instance masks become polygon labels, and
// segment masks become mask labels resized to the image. Confidence is only
// used for thresholding.
func ToLabels(p Prediction, opts Options) []label.Label {
	var out []label.Label
	for _, d := range p.Detections {
		if d.Confidence < opts.Threshold {
			continue
		}
		id, name := opts.resolve(d, p.Names)

		if len(d.Box) == 4 {
			out = append(out, label.NewBBox(id, name, d.Box[0], d.Box[1], d.Box[2], d.Box[3]))
		}
		if len(d.Polygon) >= 3 {
			out = append(out, label.NewPolygon(id, name, d.Polygon))
		}
		if d.Instance != nil {
			pts := codec.MaskToPolygon(d.Instance, InstanceEpsilon)
			if len(pts) >= 3 {
				if p.Width > 0 && p.Height > 0 && (d.Instance.Width != p.Width || d.Instance.Height != p.Height) {
					pts = geometry.ScalePoints(pts,
						float64(p.Width)/float64(d.Instance.Width),
						float64(p.Height)/float64(d.Instance.Height))
				}
				out = append(out, label.NewPolygon(id, name, pts))
			}
		}
		if d.Segment != nil && !d.Segment.Empty() {
			m := d.Segment
			if p.Width > 0 && p.Height > 0 && (m.Width != p.Width || m.Height != p.Height) {
				m = resizeMask(m, p.Width, p.Height)
			}
			out = append(out, label.NewMaskLabel(id, name, m))
		}
	}
	return out
}

func resizeMask(m *label.Mask, w, h int) *label.Mask {
	resized := imaging.Resize(m.Gray(), w, h, imaging.NearestNeighbor)
	gray := image.NewGray(resized.Bounds())
	for i := range gray.Pix {
		gray.Pix[i] = resized.Pix[i*4]
	}
	return label.MaskFromGray(gray)
}
