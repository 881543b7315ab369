// Package project manages an opened image folder: the ordered image list, label
// file paths and the per-project settings file.
package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"labeltool/internal/errors"
	"labeltool/internal/logging"
)

// Directory names inside a project folder.
const (
	LabelsDirName = "labels"
	GTDirName     = "gt_image"
	ImagesDirName = "images"
)

// ImageExtensions are the supported source image extensions, lower case.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

// IsImage reports whether path has a supported image extension (any case).
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Project is an opened image folder.
type Project struct {
	mu       sync.RWMutex
	dir      string // absolute image folder
	labelDir string // labels/ or a custom directory
	images   []string
}

// Open resolves dir, creates its labels/ directory and scans for images.
func Open(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.FileError("project", err, dir)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryNotFound).
			Context("path", abs).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.Newf("%s is not a directory", abs).
			Component("project").
			Category(errors.CategoryValidation).
			Build()
	}

	p := &Project{dir: abs, labelDir: filepath.Join(abs, LabelsDirName)}
	if err := os.MkdirAll(p.labelDir, 0o755); err != nil {
		return nil, errors.FileError("project", err, p.labelDir)
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	logging.ForService("project").Info("opened project", "dir", abs, "images", len(p.images))
	return p, nil
}

// Refresh rescans the folder for images.
func (p *Project) Refresh() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return errors.FileError("project", err, p.dir)
	}
	var images []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			images = append(images, filepath.Join(p.dir, e.Name()))
		}
	}
	sort.Strings(images)

	p.mu.Lock()
	p.images = images
	p.mu.Unlock()
	return nil
}

// Dir returns the absolute project folder.
func (p *Project) Dir() string { return p.dir }

// GTDir returns <project>/gt_image.
func (p *Project) GTDir() string { return filepath.Join(p.dir, GTDirName) }

// ImagesDir returns <project>/images, where labeled source images are copied.
func (p *Project) ImagesDir() string { return filepath.Join(p.dir, ImagesDirName) }

// LabelDir returns the directory holding YOLO text files.
func (p *Project) LabelDir() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.labelDir
}

// SetLabelDir switches to a custom label directory, creating it if needed. An
// empty path restores <project>/labels.
func (p *Project) SetLabelDir(path string) error {
	if path == "" {
		path = filepath.Join(p.dir, LabelsDirName)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.FileError("project", err, path)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return errors.FileError("project", err, abs)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return errors.Newf("label directory %s is not usable", abs).
			Component("project").
			Category(errors.CategoryValidation).
			Build()
	}

	p.mu.Lock()
	p.labelDir = abs
	p.mu.Unlock()
	return nil
}

// LabelPath returns <labelDir>/<stem>.txt for an image.
func (p *Project) LabelPath(imagePath string) string {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(p.LabelDir(), stem+".txt")
}

// HasLabels reports whether a label file exists for the image.
func (p *Project) HasLabels(imagePath string) bool {
	info, err := os.Stat(p.LabelPath(imagePath))
	return err == nil && info.Mode().IsRegular()
}

// Images returns a copy of the sorted image list.
func (p *Project) Images() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.images))
	copy(out, p.images)
	return out
}

// ImageAt returns the image at index.
func (p *Project) ImageAt(index int) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.images) {
		return "", false
	}
	return p.images[index], true
}

// IndexOf returns the position of imagePath in the list, or -1.
func (p *Project) IndexOf(imagePath string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := sort.SearchStrings(p.images, imagePath)
	if i < len(p.images) && p.images[i] == imagePath {
		return i
	}
	return -1
}

// Len returns the number of images.
func (p *Project) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.images)
}
