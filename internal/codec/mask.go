package codec

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"labeltool/internal/classes"
	"labeltool/internal/errors"
	"labeltool/internal/label"
	"labeltool/internal/logging"
	"labeltool/pkg/colorutil"
)

// MaskMode selects the pixel encoding of exported masks. It is chosen at
// export time and never stored in the file; on load the class comes from the
// directory name.
type MaskMode int

const (
	// MaskBinary writes foreground as 255.
	MaskBinary MaskMode = iota
	// MaskSemantic writes foreground as class id + 1.
	MaskSemantic
)

func (m MaskMode) String() string {
	if m == MaskSemantic {
		return "semantic"
	}
	return "binary"
}

// ParseMaskMode parses "binary" or "semantic".
func ParseMaskMode(s string) (MaskMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "binary":
		return MaskBinary, nil
	case "semantic":
		return MaskSemantic, nil
	}
	return MaskBinary, fmt.Errorf("unknown mask mode %q", s)
}

func (m MaskMode) value(classID int) uint8 {
	if m == MaskBinary {
		return 255
	}
	v := classID + 1
	if v < 1 || v > 255 {
		logging.ForService("codec").Warn("class id does not fit a semantic mask pixel, clamping", "class_id", classID)
		return 255
	}
	return uint8(v)
}

// RenderMask rasterizes labels into a single-channel image of size w x h.
// Boxes fill their integer bounding rect including the far edge, polygons are
// filled from truncated vertices, and mask labels are copied where non-zero.
// Later labels overwrite earlier ones.
func RenderMask(labels []label.Label, w, h int, mode MaskMode) (*image.Gray, error) {
	if err := checkDims(w, h); err != nil {
		return nil, err
	}
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC1)
	defer mat.Close()

	for _, l := range labels {
		v := mode.value(l.ClassID)
		switch l.Kind {
		case label.KindBBox:
			if len(l.Points) == 0 {
				continue
			}
			r := l.Bounds().Trunc()
			r.Max = r.Max.Add(image.Pt(1, 1))
			gocv.Rectangle(&mat, r, colorutil.Gray(v), -1)
		case label.KindPolygon:
			if len(l.Points) < 3 {
				continue
			}
			pts := make([]image.Point, len(l.Points))
			for i, p := range l.Points {
				pts[i] = p.Trunc()
			}
			pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
			gocv.FillPoly(&mat, pv, colorutil.Gray(v))
			pv.Close()
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	copy(out.Pix, mat.ToBytes())

	for _, l := range labels {
		if l.Kind != label.KindMask || l.Mask == nil {
			continue
		}
		if l.Mask.Width != w || l.Mask.Height != h {
			logging.ForService("codec").Warn("mask size differs from image, skipping",
				"mask", fmt.Sprintf("%dx%d", l.Mask.Width, l.Mask.Height),
				"image", fmt.Sprintf("%dx%d", w, h))
			continue
		}
		v := mode.value(l.ClassID)
		for i, p := range l.Mask.Pix {
			if p > 0 {
				out.Pix[i] = v
			}
		}
	}
	return out, nil
}

// WriteMaskPNG encodes img as a PNG at path, creating the parent directory.
func WriteMaskPNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError("codec", err, path)
	}
	if err := imaging.Save(img, path); err != nil {
		return errors.FileError("codec", err, path)
	}
	return nil
}

// WritePlaceholderMask writes an all-zero w x h mask at path, replacing any
// file already there.
func WritePlaceholderMask(path string, w, h int) error {
	if err := checkDims(w, h); err != nil {
		return err
	}
	return WriteMaskPNG(path, image.NewGray(image.Rect(0, 0, w, h)))
}

// ReadMaskPNG loads a mask image as grayscale, resizes it to w x h with nearest
// neighbour sampling if needed, and binarizes it.
func ReadMaskPNG(path string, w, h int) (*label.Mask, error) {
	if err := checkDims(w, h); err != nil {
		return nil, err
	}
	src, err := imaging.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("codec").
			Category(errors.CategoryImageDecode).
			Context("path", path).
			Build()
	}
	gray := imaging.Grayscale(src)
	if b := gray.Bounds(); b.Dx() != w || b.Dy() != h {
		gray = imaging.Resize(gray, w, h, imaging.NearestNeighbor)
	}

	m := label.NewMask(w, h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			if row[x*4] > 0 {
				m.Pix[y*w+x] = 255
			}
		}
	}
	return m, nil
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadGTMasks reads gt_image/<class>/<stem>.* for every class directory under
// gtDir and returns at most one mask label per class. Directory entries are
// visited in name order, so when several files share the stem the first by
// name wins. Empty masks are skipped. Unknown class directories are
// registered through registry; without one they map to class 0.
func LoadGTMasks(gtDir, imagePath string, w, h int, lookup classes.Lookup, registry classes.Registry) ([]label.Label, error) {
	if err := checkDims(w, h); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(gtDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileError("codec", err, gtDir)
	}

	log := logging.ForService("codec")
	want := Stem(imagePath)
	var labels []label.Label
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		className := dir.Name()
		classDir := filepath.Join(gtDir, className)
		files, err := os.ReadDir(classDir)
		if err != nil {
			log.Warn("cannot list class directory", "dir", classDir, "error", err)
			continue
		}

		for _, f := range files {
			if f.IsDir() || Stem(f.Name()) != want {
				continue
			}
			path := filepath.Join(classDir, f.Name())
			m, err := ReadMaskPNG(path, w, h)
			if err != nil {
				log.Warn("skipping unreadable mask", "path", path, "error", err)
				continue
			}
			if m.Empty() {
				continue
			}
			labels = append(labels, label.NewMaskLabel(resolveClass(className, lookup, registry), className, m))
			break
		}
	}
	return labels, nil
}

func resolveClass(name string, lookup classes.Lookup, registry classes.Registry) int {
	if lookup != nil {
		if id, ok := lookup.ID(name); ok {
			return id
		}
	}
	if registry != nil {
		return registry.Register(name)
	}
	return 0
}
