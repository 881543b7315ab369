package label

import (
	"bytes"
	"image"

	"labeltool/internal/errors"
	"labeltool/pkg/geometry"
)

// Mask is a single-channel raster the size of its image, stored row-major.
// Foreground pixels are 255 and background 0.
type Mask struct {
	Width  int
	Height int
	Pix    []byte
}

// NewMask allocates an all-zero mask.
func NewMask(width, height int) *Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Mask{Width: width, Height: height, Pix: make([]byte, width*height)}
}

// MaskFromGray copies a grayscale image into a mask, mapping any non-zero
// pixel to 255.
func MaskFromGray(img *image.Gray) *Mask {
	b := img.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		row := img.Pix[(y)*img.Stride : (y)*img.Stride+m.Width]
		for x, v := range row {
			if v > 0 {
				m.Pix[y*m.Width+x] = 255
			}
		}
	}
	return m
}

// At returns the pixel value, 0 outside the mask.
func (m *Mask) At(x, y int) byte {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Pix[y*m.Width+x]
}

// Set writes a pixel value; writes outside the mask are ignored.
func (m *Mask) Set(x, y int, v byte) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = v
}

// Binarize maps every non-zero pixel to 255.
func (m *Mask) Binarize() {
	for i, v := range m.Pix {
		if v > 0 {
			m.Pix[i] = 255
		}
	}
}

// Empty reports whether every pixel is zero.
func (m *Mask) Empty() bool {
	for _, v := range m.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of non-zero pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Bounds returns the bounding rect of the foreground pixels.
func (m *Mask) Bounds() geometry.Rect {
	minX, minY, maxX, maxY := m.Width, m.Height, -1, -1
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return geometry.Rect{}
	}
	return geometry.RectFromCorners(float64(minX), float64(minY), float64(maxX+1), float64(maxY+1))
}

// Gray returns the mask as an image.Gray sharing no memory with m.
func (m *Mask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(img.Pix, m.Pix)
	return img
}

// Clone returns a deep copy (nil stays nil).
func (m *Mask) Clone() *Mask {
	if m == nil {
		return nil
	}
	pix := make([]byte, len(m.Pix))
	copy(pix, m.Pix)
	return &Mask{Width: m.Width, Height: m.Height, Pix: pix}
}

// Equal compares dimensions and pixels. Two nil masks are equal.
func (m *Mask) Equal(o *Mask) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Width == o.Width && m.Height == o.Height && bytes.Equal(m.Pix, o.Pix)
}

func (m *Mask) validate() error {
	if m.Width <= 0 || m.Height <= 0 || len(m.Pix) != m.Width*m.Height {
		return errors.ValidationError("label", "mask has inconsistent size %dx%d with %d pixels", m.Width, m.Height, len(m.Pix))
	}
	for _, v := range m.Pix {
		if v != 0 && v != 255 {
			return errors.ValidationError("label", "mask pixel value %d is not 0 or 255", v)
		}
	}
	return nil
}
