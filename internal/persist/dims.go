package persist

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"labeltool/internal/errors"
)

// DimensionSource reports the pixel size of a source image.
type DimensionSource interface {
	Dimensions(imagePath string) (width, height int, err error)
}

// DimensionFunc adapts a function to DimensionSource.
type DimensionFunc func(imagePath string) (int, int, error)

// Dimensions calls f.
func (f DimensionFunc) Dimensions(imagePath string) (int, int, error) { return f(imagePath) }

type dims struct{ w, h int }

// FileDimensions reads image headers with image.DecodeConfig and caches the
// result per path, size and modification time.
type FileDimensions struct {
	cache *cache.Cache
}

// NewFileDimensions creates a header-reading source whose entries expire
// after ttl.
func NewFileDimensions(ttl time.Duration) *FileDimensions {
	return &FileDimensions{cache: cache.New(ttl, 2*ttl)}
}

// Dimensions implements DimensionSource.
func (d *FileDimensions) Dimensions(imagePath string) (int, int, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		return 0, 0, errors.New(err).
			Component("persist").
			Category(errors.CategoryNotFound).
			Context("path", imagePath).
			Build()
	}
	key := fmt.Sprintf("%s|%d|%d", imagePath, info.Size(), info.ModTime().UnixNano())
	if v, ok := d.cache.Get(key); ok {
		cached := v.(dims)
		return cached.w, cached.h, nil
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return 0, 0, errors.FileError("persist", err, imagePath)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.New(err).
			Component("persist").
			Category(errors.CategoryImageDecode).
			Context("path", imagePath).
			Build()
	}
	d.cache.Set(key, dims{cfg.Width, cfg.Height}, cache.DefaultExpiration)
	return cfg.Width, cfg.Height, nil
}

// Flush drops every cached entry.
func (d *FileDimensions) Flush() {
	d.cache.Flush()
}
