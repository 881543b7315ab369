// Package colorutil provides the class display palette and hex color helpers.
package colorutil

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ClassPalette is the fixed palette classes are colored from, indexed by class id mod 20.
var ClassPalette = []string{
	"#FF3838", "#FF9D97", "#FF701F", "#FFB21D", "#CFD231",
	"#48F90A", "#92CC17", "#3DDB86", "#1A9334", "#00D4BB",
	"#2C99A8", "#00C2FF", "#344593", "#6473FF", "#0018EC",
	"#8438FF", "#520085", "#CB38FF", "#FF95C8", "#FF37C7",
}

// ForClass returns the deterministic palette color for a class id.
func ForClass(classID int) string {
	n := len(ClassPalette)
	idx := classID % n
	if idx < 0 {
		idx += n
	}
	return ClassPalette[idx]
}

// ParseHex parses "#RRGGBB" or "#RRGGBBAA" (leading '#' optional).
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	if len(h) == 6 {
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ToHex formats a color as "#RRGGBB".
func ToHex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Gray returns an opaque gray value usable as a single-channel fill color.
// OpenCV reads the first scalar channel for 8-bit single-channel images, so all
// three channels carry the same value.
func Gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 255}
}
