// Package persist reconciles the label store with the project folder: it
// decides which YOLO text files, per-class mask PNGs and image copies to
// write, delete or read for one image or for the whole project.
//
// Failures on individual files are logged and returned as aggregated errors;
// files already written stay on disk.
package persist

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"labeltool/internal/classes"
	"labeltool/internal/codec"
	"labeltool/internal/errors"
	"labeltool/internal/label"
	"labeltool/internal/logging"
	"labeltool/internal/project"
)

// Reader is the read side of the label store.
type Reader interface {
	Get(imagePath string) []label.Label
	Loaded(imagePath string) bool
}

// Summary counts the outcome of SaveAll.
type Summary struct {
	LabelFiles  int
	GTImages    int
	ImageCopies int
	Failed      int
	Total       int
}

func (s Summary) String() string {
	return fmt.Sprintf("saved %d of %d images (%d label files, %d GT images, %d image copies)",
		s.Total-s.Failed, s.Total, s.LabelFiles, s.GTImages, s.ImageCopies)
}

// Orchestrator performs all label disk IO for one project session.
type Orchestrator struct {
	project *project.Project
	store   Reader
	dims    DimensionSource
	mode    codec.MaskMode
}

// New creates an orchestrator.
func New(p *project.Project, st Reader, dims DimensionSource, mode codec.MaskMode) *Orchestrator {
	return &Orchestrator{project: p, store: st, dims: dims, mode: mode}
}

// SetMaskMode changes the mask encoding for subsequent saves.
func (o *Orchestrator) SetMaskMode(mode codec.MaskMode) { o.mode = mode }

// MaskMode returns the current mask encoding.
func (o *Orchestrator) MaskMode() codec.MaskMode { return o.mode }

func precondition(imagePath, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("persist").
		Category(errors.CategoryValidation).
		Context("image", imagePath).
		Build()
}

func (o *Orchestrator) dimensions(imagePath string) (int, int, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return 0, 0, precondition(imagePath, "source image missing: %v", err)
	}
	w, h, err := o.dims.Dimensions(imagePath)
	if err != nil {
		return 0, 0, err
	}
	if w <= 0 || h <= 0 {
		return 0, 0, precondition(imagePath, "invalid image dimensions %dx%d", w, h)
	}
	return w, h, nil
}

// saved records what one image save wrote.
type saved struct {
	labels    int // box/polygon lines written, 0 = no label file
	gtClasses int
	copied    bool
}

func (s saved) descriptions() []string {
	var out []string
	if s.labels > 0 {
		out = append(out, fmt.Sprintf("%d labels", s.labels))
	}
	if s.gtClasses > 0 {
		out = append(out, fmt.Sprintf("GT images (%d classes)", s.gtClasses))
	}
	if s.copied {
		out = append(out, "image")
	}
	return out
}

// SaveImage writes the label artifacts of one image and returns a description
// of each thing saved, e.g. ["3 labels", "GT images (1 classes)", "image"].
//
// The store is authoritative for images it has loaded; an image it never
// loaded is left alone. The label file is removed when no box or polygon
// labels remain. Mask labels are written as one PNG per class; every other
// existing gt_image class directory gets an all-zero placeholder for the
// image, and when the image has no masks at all its gt_image files are
// removed. The source image is copied to images/ once; an existing copy is
// never replaced.
func (o *Orchestrator) SaveImage(imagePath string) ([]string, error) {
	res, err := o.saveImage(imagePath)
	return res.descriptions(), err
}

func (o *Orchestrator) saveImage(imagePath string) (saved, error) {
	log := logging.ForService("persist")
	var res saved
	if !o.store.Loaded(imagePath) {
		log.Debug("image not loaded, nothing to save", "image", imagePath)
		return res, nil
	}
	labels := o.store.Get(imagePath)

	var shapes, masks []label.Label
	for _, l := range labels {
		switch l.Kind {
		case label.KindBBox, label.KindPolygon:
			shapes = append(shapes, l)
		case label.KindMask:
			masks = append(masks, l)
		}
	}

	var errs []error
	labelPath := o.project.LabelPath(imagePath)

	if len(shapes) == 0 {
		if err := removeIfExists(labelPath); err != nil {
			log.Error("failed to remove stale label file", "path", labelPath, "error", err)
			errs = append(errs, err)
		}
	}
	if len(masks) == 0 {
		if err := o.clearMasks(imagePath, nil); err != nil {
			log.Error("failed to remove stale masks", "image", imagePath, "error", err)
			errs = append(errs, err)
		}
	}
	if len(labels) == 0 {
		return res, errors.Join(errs...)
	}

	w, h, err := o.dimensions(imagePath)
	if err != nil {
		log.Error("cannot save labels", "image", imagePath, "error", err)
		return res, errors.Join(append(errs, err)...)
	}

	if len(shapes) > 0 {
		if err := codec.WriteYOLO(labelPath, shapes, w, h); err != nil {
			log.Error("failed to write label file", "path", labelPath, "error", err)
			errs = append(errs, err)
		} else {
			res.labels = len(shapes)
		}
	}

	if len(masks) > 0 {
		n, err := o.saveMasks(imagePath, masks, w, h)
		if err != nil {
			errs = append(errs, err)
		}
		res.gtClasses = n
	}

	copied, err := o.copySource(imagePath)
	if err != nil {
		log.Error("failed to copy source image", "image", imagePath, "error", err)
		errs = append(errs, err)
	}
	res.copied = copied

	log.Debug("saved image", "image", imagePath, "items", res.descriptions())
	return res, errors.Join(errs...)
}

// saveMasks renders all masks of a class into one PNG, writes placeholders
// for the remaining class directories and removes any other file sharing the
// image stem. It returns the number of classes written.
func (o *Orchestrator) saveMasks(imagePath string, masks []label.Label, w, h int) (int, error) {
	log := logging.ForService("persist")
	gt := o.project.GTDir()
	name := codec.Stem(imagePath) + ".png"

	var order []string
	groups := make(map[string][]label.Label)
	for _, m := range masks {
		if _, ok := groups[m.ClassName]; !ok {
			order = append(order, m.ClassName)
		}
		groups[m.ClassName] = append(groups[m.ClassName], m)
	}

	var errs []error
	keep := make(map[string]bool)
	written := 0
	for _, class := range order {
		img, err := codec.RenderMask(groups[class], w, h, o.mode)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		path := filepath.Join(gt, class, name)
		if err := codec.WriteMaskPNG(path, img); err != nil {
			log.Error("failed to write mask", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		keep[class] = true
		written++
	}

	classDirs, err := o.classDirs()
	if err != nil {
		errs = append(errs, err)
	}
	for _, class := range classDirs {
		if _, ok := groups[class]; ok {
			continue
		}
		path := filepath.Join(gt, class, name)
		if err := codec.WritePlaceholderMask(path, w, h); err != nil {
			log.Error("failed to write placeholder mask", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		keep[class] = true
	}

	if err := o.clearMasks(imagePath, keep); err != nil {
		errs = append(errs, err)
	}
	return written, errors.Join(errs...)
}

// classDirs lists the gt_image class directories in name order.
func (o *Orchestrator) classDirs() ([]string, error) {
	gt := o.project.GTDir()
	entries, err := os.ReadDir(gt)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileError("persist", err, gt)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// clearMasks removes every gt_image/<class>/<stem>.* file of an image, except
// <stem>.png in the classes marked in keep.
func (o *Orchestrator) clearMasks(imagePath string, keep map[string]bool) error {
	classDirs, err := o.classDirs()
	if err != nil {
		return err
	}
	gt := o.project.GTDir()
	stem := codec.Stem(imagePath)
	var errs []error
	for _, class := range classDirs {
		dir := filepath.Join(gt, class)
		files, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, errors.FileError("persist", err, dir))
			continue
		}
		for _, f := range files {
			if f.IsDir() || codec.Stem(f.Name()) != stem {
				continue
			}
			if keep[class] && f.Name() == stem+".png" {
				continue
			}
			if err := removeIfExists(filepath.Join(dir, f.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) copySource(imagePath string) (bool, error) {
	dir := o.project.ImagesDir()
	dest := filepath.Join(dir, filepath.Base(imagePath))
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, errors.FileError("persist", err, dir)
	}
	if err := copyFile(imagePath, dest); err != nil {
		return false, err
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.FileError("persist", err, src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.FileError("persist", err, src)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return errors.FileError("persist", err, dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.FileError("persist", err, dst)
	}
	if err := out.Close(); err != nil {
		return errors.FileError("persist", err, dst)
	}
	// keep the source timestamp like a plain file copy tool would
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.FileError("persist", err, path)
	}
	return nil
}

// SaveAll is SaveAllContext with a background context.
func (o *Orchestrator) SaveAll() Summary {
	return o.SaveAllContext(context.Background())
}

// SaveAllContext saves every project image whose labels are materialized in
// the store. Images never loaded are left alone so unseen disk labels are not
// clobbered. A failing image is counted and skipped; cancellation is checked
// between images.
func (o *Orchestrator) SaveAllContext(ctx context.Context) Summary {
	log := logging.ForService("persist")

	var targets []string
	for _, img := range o.project.Images() {
		if o.store.Loaded(img) {
			targets = append(targets, img)
		}
	}
	o.prefetch(ctx, targets)

	var sum Summary
	for _, img := range targets {
		if ctx.Err() != nil {
			log.Info("save all cancelled", "done", sum.Total, "remaining", len(targets)-sum.Total)
			break
		}
		sum.Total++
		res, err := o.saveImage(img)
		if err != nil {
			sum.Failed++
		}
		if res.labels > 0 {
			sum.LabelFiles++
		}
		if res.gtClasses > 0 {
			sum.GTImages++
		}
		if res.copied {
			sum.ImageCopies++
		}
	}
	log.Info("save all finished", "summary", sum.String())
	return sum
}

// prefetch warms the dimension source in parallel so the sequential save loop
// only pays for writes.
func (o *Orchestrator) prefetch(ctx context.Context, images []string) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, img := range images {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, _, _ = o.dims.Dimensions(img)
			return nil
		})
	}
	_ = g.Wait()
}

// DeleteImageArtifacts removes the label file and every gt_image/<class>/<stem>.*
// mask of an image. Files already gone are not an error.
func (o *Orchestrator) DeleteImageArtifacts(imagePath string) error {
	log := logging.ForService("persist")
	var errs []error

	if err := removeIfExists(o.project.LabelPath(imagePath)); err != nil {
		errs = append(errs, err)
	}
	if err := o.clearMasks(imagePath, nil); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		log.Error("failed to delete some label artifacts", "image", imagePath, "error", err)
		return err
	}
	return nil
}

// LoadImageLabels reads an image's labels from disk: the YOLO text file first,
// then gt_image masks. Every gt_image subdirectory name and every unknown class
// name in the text file is registered. The caller decides whether a load is
// needed; this never consults the store.
func (o *Orchestrator) LoadImageLabels(imagePath string, lookup classes.Lookup, registry classes.Registry) ([]label.Label, error) {
	log := logging.ForService("persist")
	w, h, err := o.dimensions(imagePath)
	if err != nil {
		log.Warn("cannot load labels", "image", imagePath, "error", err)
		return nil, err
	}

	var errs []error
	labels, err := codec.ReadYOLO(o.project.LabelPath(imagePath), w, h, lookup, registry)
	if err != nil {
		log.Error("failed to read label file", "image", imagePath, "error", err)
		errs = append(errs, err)
	}

	gt := o.project.GTDir()
	entries, err := os.ReadDir(gt)
	switch {
	case err == nil:
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			known := false
			if lookup != nil {
				_, known = lookup.ID(e.Name())
			}
			if !known && registry != nil {
				registry.Register(e.Name())
			}
		}
		masks, err := codec.LoadGTMasks(gt, imagePath, w, h, lookup, registry)
		if err != nil {
			errs = append(errs, err)
		}
		labels = append(labels, masks...)
	case !os.IsNotExist(err):
		errs = append(errs, errors.FileError("persist", err, gt))
	}

	return labels, errors.Join(errs...)
}

// OrphanLabelFiles lists .txt files in the label directory whose stem matches
// no image of the project.
func (o *Orchestrator) OrphanLabelFiles() ([]string, error) {
	stems := map[string]bool{}
	for _, img := range o.project.Images() {
		stems[codec.Stem(img)] = true
	}

	dir := o.project.LabelDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileError("persist", err, dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		if !stems[codec.Stem(e.Name())] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// RemoveOrphans deletes the files returned by OrphanLabelFiles.
func (o *Orchestrator) RemoveOrphans() ([]string, error) {
	orphans, err := o.OrphanLabelFiles()
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, path := range orphans {
		if err := removeIfExists(path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(orphans) > 0 {
		logging.ForService("persist").Info("removed orphan label files", "count", len(orphans))
	}
	return orphans, errors.Join(errs...)
}
