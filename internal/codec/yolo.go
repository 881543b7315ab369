// Package codec converts label lists to and from their on-disk forms: YOLO
// text lines with a class-name prefix, and per-class grayscale mask PNGs.
//
// Decoding takes the class table and an explicit classes.Registry; unknown
// class names met on disk are registered through it and the returned id wins
// over whatever id the file carried.
package codec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"labeltool/internal/classes"
	"labeltool/internal/errors"
	"labeltool/internal/label"
	"labeltool/internal/logging"
	"labeltool/pkg/geometry"
)

// ExportEpsilon is the Douglas-Peucker tolerance, as a fraction of contour
// perimeter, used when a mask label is written as a YOLO polygon.
const ExportEpsilon = 0.005

func checkDims(w, h int) error {
	if w <= 0 || h <= 0 {
		return errors.Newf("invalid image dimensions %dx%d", w, h).
			Component("codec").
			Category(errors.CategoryValidation).
			Context("width", w).
			Context("height", h).
			Build()
	}
	return nil
}

func norm(v float64, d int) string {
	return strconv.FormatFloat(v/float64(d), 'f', 6, 64)
}

func pointsLine(l label.Label, pts []geometry.Point2D, w, h int) string {
	var sb strings.Builder
	sb.WriteString(l.ClassName)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(l.ClassID))
	for _, p := range pts {
		sb.WriteByte(' ')
		sb.WriteString(norm(p.X, w))
		sb.WriteByte(' ')
		sb.WriteString(norm(p.Y, h))
	}
	return sb.String()
}

// FormatYOLOLine encodes one label. The second result is false when the label
// produces no line (a mask with no usable contour, or an unknown kind).
func FormatYOLOLine(l label.Label, w, h int) (string, bool) {
	switch l.Kind {
	case label.KindBBox:
		b := l.Bounds()
		c := b.Center()
		return fmt.Sprintf("%s %d %s %s %s %s", l.ClassName, l.ClassID,
			norm(c.X, w), norm(c.Y, h), norm(b.Width, w), norm(b.Height, h)), true
	case label.KindPolygon:
		return pointsLine(l, l.Points, w, h), true
	case label.KindMask:
		if l.Mask == nil {
			return "", false
		}
		pts := MaskToPolygon(l.Mask, ExportEpsilon)
		if len(pts) < 3 {
			return "", false
		}
		return pointsLine(l, pts, w, h), true
	}
	return "", false
}

// EncodeYOLO encodes every label that yields a line.
func EncodeYOLO(labels []label.Label, w, h int) ([]string, error) {
	if err := checkDims(w, h); err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(labels))
	for _, l := range labels {
		line, ok := FormatYOLOLine(l, w, h)
		if !ok {
			logging.ForService("codec").Warn("label produced no YOLO line", "label", l.String())
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// WriteYOLO writes labels to path, creating the parent directory. Invalid
// dimensions reject the write and leave any existing file untouched.
func WriteYOLO(path string, labels []label.Label, w, h int) error {
	lines, err := EncodeYOLO(labels, w, h)
	if err != nil {
		logging.ForService("codec").Error("refusing to write label file", "path", path, "error", err)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError("codec", err, path)
	}
	data := strings.Join(lines, "\n")
	if len(lines) > 0 {
		data += "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return errors.FileError("codec", err, path)
	}
	return nil
}

func parseError(line, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("codec").
		Category(errors.CategoryFileParsing).
		Context("line", line).
		Build()
}

// ParseYOLOLine decodes one non-blank line.
//
// A first token that is an integer selects the legacy "<id> <coords>" form,
// whose name comes from lookup. A legacy id the lookup does not know is
// registered under its decimal string and takes the registered id. Any other
// line is "<name> <id> <coords>", so names such as "nan" or "1e3" stay names.
// Four coordinates make a bbox; an even count of six or more makes a polygon.
// registry may be nil, in which case unknown names keep the id from the line.
func ParseYOLOLine(line string, w, h int, lookup classes.Lookup, registry classes.Registry) (label.Label, error) {
	if err := checkDims(w, h); err != nil {
		return label.Label{}, err
	}
	parts := strings.Fields(line)
	if len(parts) < 5 {
		return label.Label{}, parseError(line, "expected at least 5 fields, got %d", len(parts))
	}

	var (
		classID   int
		className string
		rest      []string
	)
	if id, err := strconv.Atoi(parts[0]); err == nil {
		classID = id
		className = strconv.Itoa(id)
		known := false
		if lookup != nil {
			if n, ok := lookup.Name(id); ok {
				className, known = n, true
			}
		}
		if !known && registry != nil {
			classID = registry.Register(className)
		}
		rest = parts[1:]
	} else {
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return label.Label{}, parseError(line, "class id %q is not an integer", parts[1])
		}
		className = parts[0]
		classID = id
		known := false
		if lookup != nil {
			_, known = lookup.ID(className)
		}
		if !known && registry != nil {
			classID = registry.Register(className)
		}
	rest = parts[2:]
	}

	values := make([]float64, len(rest))
	for i, s := range rest {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return label.Label{}, parseError(line, "coordinate %q is not a number", s)
		}
		values[i] = v
	}

	fw, fh := float64(w), float64(h)
	switch {
	case len(values) == 4:
		cx, cy, bw, bh := values[0], values[1], values[2], values[3]
		return label.NewBBox(classID, className,
			(cx-bw/2)*fw, (cy-bh/2)*fh,
			(cx+bw/2)*fw, (cy+bh/2)*fh), nil
	case len(values) >= 6 && len(values)%2 == 0:
		pts := make([]geometry.Point2D, 0, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			pts = append(pts, geometry.Point2D{X: values[i] * fw, Y: values[i+1] * fh})
		}
		return label.NewPolygon(classID, className, pts), nil
	}
	return label.Label{}, parseError(line, "unsupported coordinate count %d", len(values))
}

// ReadYOLO loads a label file. A missing file yields no labels and no error.
// Malformed lines are logged and skipped.
func ReadYOLO(path string, w, h int, lookup classes.Lookup, registry classes.Registry) ([]label.Label, error) {
	if err := checkDims(w, h); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileError("codec", err, path)
	}
	defer f.Close()

	log := logging.ForService("codec")
	var labels []label.Label
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l, err := ParseYOLOLine(line, w, h, lookup, registry)
		if err != nil {
			log.Warn("skipping malformed label line", "path", path, "line", lineNo, "error", err)
			continue
		}
		labels = append(labels, l)
	}
	if err := scanner.Err(); err != nil {
		return labels, errors.FileError("codec", err, path)
	}
	return labels, nil
}
