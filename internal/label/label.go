// Package label defines the annotation unit: a bounding box, polygon or raster
// mask tied to a class.
package label

import (
	"fmt"
	"strings"

	"labeltool/internal/errors"
	"labeltool/pkg/colorutil"
	"labeltool/pkg/geometry"
)

// Kind identifies the geometry stored on a Label.
type Kind int

const (
	KindBBox Kind = iota
	KindPolygon
	KindMask
)

func (k Kind) String() string {
	switch k {
	case KindBBox:
		return "bbox"
	case KindPolygon:
		return "polygon"
	case KindMask:
		return "mask"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "bbox", "polygon" or "mask".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bbox":
		return KindBBox, nil
	case "polygon":
		return KindPolygon, nil
	case "mask":
		return KindMask, nil
	}
	return 0, fmt.Errorf("unknown label kind %q", s)
}

// Color is either derived from the class id or an explicit hex override.
type Color struct {
	explicit string // empty = derived from class id
}

// Derived returns a Color that follows the class palette.
func Derived() Color { return Color{} }

// Explicit returns a Color pinned to hex.
func Explicit(hex string) Color { return Color{explicit: hex} }

// IsExplicit reports whether the color is an override.
func (c Color) IsExplicit() bool { return c.explicit != "" }

// Hex resolves the display color for a label of the given class.
func (c Color) Hex(classID int) string {
	if c.explicit != "" {
		return c.explicit
	}
	return colorutil.ForClass(classID)
}

// Label is one annotation instance on an image.
//
// Labels are values: the store and the undo log hand out clones, and edits are
// expressed as a replacement Label rather than in-place mutation.
type Label struct {
	ClassID   int
	ClassName string // name at creation time; not kept in sync with renames
	Kind      Kind
	Points    []geometry.Point2D // bbox: TL, TR, BR, BL; polygon: >= 3 vertices; mask: empty
	Color     Color
	Mask      *Mask // non-nil iff Kind == KindMask
}

// NewBBox builds a bounding box label from two opposite corners.
func NewBBox(classID int, className string, x1, y1, x2, y2 float64) Label {
	return Label{
		ClassID:   classID,
		ClassName: className,
		Kind:      KindBBox,
		Points:    geometry.RectFromCorners(x1, y1, x2, y2).Corners(),
	}
}

// NewPolygon builds a polygon label. The points are copied.
func NewPolygon(classID int, className string, points []geometry.Point2D) Label {
	return Label{
		ClassID:   classID,
		ClassName: className,
		Kind:      KindPolygon,
		Points:    geometry.ClonePoints(points),
	}
}

// NewMaskLabel builds a raster mask label. The mask is binarized and copied.
func NewMaskLabel(classID int, className string, m *Mask) Label {
	c := m.Clone()
	if c != nil {
		c.Binarize()
	}
	return Label{
		ClassID:   classID,
		ClassName: className,
		Kind:      KindMask,
		Mask:      c,
	}
}

// ColorHex returns the resolved display color.
func (l Label) ColorHex() string {
	return l.Color.Hex(l.ClassID)
}

// Bounds returns the axis-aligned bounds of the points. Min/max are recomputed
// from all points so a distorted box still yields sane bounds.
func (l Label) Bounds() geometry.Rect {
	if l.Kind == KindMask && l.Mask != nil {
		return l.Mask.Bounds()
	}
	return geometry.BoundingBox(l.Points)
}

// Clone returns a deep copy.
func (l Label) Clone() Label {
	out := l
	out.Points = geometry.ClonePoints(l.Points)
	if l.Mask != nil {
		out.Mask = l.Mask.Clone()
	}
	return out
}

// Equal reports whether two labels carry the same values.
func (l Label) Equal(o Label) bool {
	if l.ClassID != o.ClassID || l.ClassName != o.ClassName || l.Kind != o.Kind || l.Color != o.Color {
		return false
	}
	if len(l.Points) != len(o.Points) {
		return false
	}
	for i := range l.Points {
		if l.Points[i] != o.Points[i] {
			return false
		}
	}
	return l.Mask.Equal(o.Mask)
}

// Validate checks the kind/geometry invariant.
func (l Label) Validate() error {
	switch l.Kind {
	case KindBBox:
		if len(l.Points) != 4 || l.Mask != nil {
			return errors.ValidationError("label", "bbox needs exactly 4 points and no mask, got %d points", len(l.Points))
		}
	case KindPolygon:
		if len(l.Points) < 3 || l.Mask != nil {
			return errors.ValidationError("label", "polygon needs at least 3 points and no mask, got %d points", len(l.Points))
		}
	case KindMask:
		if l.Mask == nil || len(l.Points) != 0 {
			return errors.ValidationError("label", "mask label needs mask data and no points")
		}
		if err := l.Mask.validate(); err != nil {
			return err
		}
	default:
		return errors.ValidationError("label", "unknown label kind %d", int(l.Kind))
	}
	return nil
}

func (l Label) String() string {
	return fmt.Sprintf("%s[%d:%s]", l.Kind, l.ClassID, l.ClassName)
}

// CloneAll deep-copies a slice of labels. A nil input yields an empty slice.
func CloneAll(labels []Label) []Label {
	out := make([]Label, len(labels))
	for i, l := range labels {
		out[i] = l.Clone()
	}
	return out
}
