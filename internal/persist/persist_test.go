package persist

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labeltool/internal/classes"
	"labeltool/internal/codec"
	"labeltool/internal/errors"
	"labeltool/internal/label"
	"labeltool/internal/project"
	"labeltool/internal/store"
)

type fixture struct {
	dir   string
	proj  *project.Project
	store *store.Store
	orch  *Orchestrator
	table *classes.Table
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, imaging.Save(image.NewNRGBA(image.Rect(0, 0, w, h)), path))
}

func newFixture(t *testing.T, images map[string][2]int) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, wh := range images {
		writeImage(t, filepath.Join(dir, name), wh[0], wh[1])
	}
	p, err := project.Open(dir)
	require.NoError(t, err)
	s := store.New()
	return &fixture{
		dir:   dir,
		proj:  p,
		store: s,
		orch:  New(p, s, NewFileDimensions(time.Minute), codec.MaskBinary),
		table: classes.NewTable("person", "bike", "car"),
	}
}

func (f *fixture) img(name string) string { return filepath.Join(f.dir, name) }

func fullMask(w, h int) *label.Mask {
	m := label.NewMask(w, h)
	for i := range m.Pix {
		m.Pix[i] = 255
	}
	return m
}

func TestSaveImageWritesLabelFileAndCopy(t *testing.T) {
	f := newFixture(t, map[string][2]int{"street.png": {800, 600}})
	img := f.img("street.png")
	f.store.ReplaceAll(img, []label.Label{label.NewBBox(2, "car", 100, 100, 300, 400)})

	saved, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.Equal(t, []string{"1 labels", "image"}, saved)

	data, err := os.ReadFile(f.proj.LabelPath(img))
	require.NoError(t, err)
	assert.Equal(t, "car 2 0.250000 0.416667 0.250000 0.500000\n", string(data))
	assert.FileExists(t, filepath.Join(f.dir, "images", "street.png"))

	// second save keeps the existing copy
	saved, err = f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.Equal(t, []string{"1 labels"}, saved)
}

func TestSaveImageRemovesStaleLabelFile(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {10, 10}})
	img := f.img("a.png")
	f.store.ReplaceAll(img, []label.Label{label.NewBBox(0, "person", 1, 1, 5, 5)})
	_, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	require.FileExists(t, f.proj.LabelPath(img))

	f.store.ReplaceAll(img, nil)
	saved, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.NoFileExists(t, f.proj.LabelPath(img))
}

func TestSaveImageMaskOnlyDropsLabelFile(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {4, 4}})
	img := f.img("a.png")
	require.NoError(t, os.WriteFile(f.proj.LabelPath(img), []byte("old 0 0.5 0.5 0.1 0.1\n"), 0o644))
	f.store.ReplaceAll(img, []label.Label{label.NewMaskLabel(0, "person", fullMask(4, 4))})

	saved, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.Equal(t, []string{"GT images (1 classes)", "image"}, saved)
	assert.NoFileExists(t, f.proj.LabelPath(img))
}

func TestSaveImageWritesPlaceholders(t *testing.T) {
	f := newFixture(t, map[string][2]int{"img1.png": {6, 4}, "img2.png": {6, 4}})
	gt := f.proj.GTDir()
	require.NoError(t, os.MkdirAll(filepath.Join(gt, "dog"), 0o755))

	// a dog mask for img2 that the store no longer holds
	require.NoError(t, codec.WriteMaskPNG(filepath.Join(gt, "dog", "img2.png"), imaging.New(6, 4, image.White.C)))

	for _, name := range []string{"img1.png", "img2.png"} {
		f.store.ReplaceAll(f.img(name), []label.Label{label.NewMaskLabel(0, "person", fullMask(6, 4))})
		_, err := f.orch.SaveImage(f.img(name))
		require.NoError(t, err)
	}

	person, err := codec.ReadMaskPNG(filepath.Join(gt, "person", "img1.png"), 6, 4)
	require.NoError(t, err)
	assert.Equal(t, 24, person.Count())

	for _, name := range []string{"img1.png", "img2.png"} {
		dog, err := codec.ReadMaskPNG(filepath.Join(gt, "dog", name), 6, 4)
		require.NoError(t, err)
		assert.True(t, dog.Empty(), "%s dog placeholder is all zero", name)
	}

	assert.NoDirExists(t, filepath.Join(gt, "bike"), "classes without a directory get no placeholder")
}

func TestSaveImageDropsRemovedMasks(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {6, 4}})
	img := f.img("a.png")
	f.table.Add("cat")
	f.table.Add("dog")
	f.store.ReplaceAll(img, []label.Label{
		label.NewMaskLabel(3, "cat", fullMask(6, 4)),
		label.NewMaskLabel(4, "dog", fullMask(6, 4)),
	})
	_, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	stray := filepath.Join(f.proj.GTDir(), "dog", "a.bmp")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	// drop the dog mask the way an undoable edit does
	f.store.Mutate(img, func(live []label.Label) []label.Label { return live[:1] })
	_, err = f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.NoFileExists(t, stray)

	labels, err := f.orch.LoadImageLabels(img, f.table, f.table)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "cat", labels[0].ClassName)

	f.store.ReplaceAll(img, nil)
	_, err = f.orch.SaveImage(img)
	require.NoError(t, err)
	labels, err = f.orch.LoadImageLabels(img, f.table, f.table)
	require.NoError(t, err)
	assert.Empty(t, labels)
	assert.NoFileExists(t, filepath.Join(f.proj.GTDir(), "cat", "a.png"))
}

func TestSaveImageMergesSameClassMasks(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {6, 4}})
	img := f.img("a.png")
	f.table.Add("cat")

	left, right := label.NewMask(6, 4), label.NewMask(6, 4)
	left.Set(0, 0, 255)
	left.Set(1, 0, 255)
	right.Set(5, 3, 255)
	f.store.ReplaceAll(img, []label.Label{
		label.NewMaskLabel(3, "cat", left),
		label.NewMaskLabel(3, "cat", right),
	})
	saved, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.Contains(t, saved, "GT images (1 classes)")

	labels, err := f.orch.LoadImageLabels(img, f.table, f.table)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, 3, labels[0].Mask.Count())
}

func TestSaveImageSkipsUnloaded(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {6, 4}})
	img := f.img("a.png")
	mask := filepath.Join(f.proj.GTDir(), "person", "a.png")
	require.NoError(t, codec.WriteMaskPNG(mask, imaging.New(6, 4, image.White.C)))

	saved, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.FileExists(t, mask)
}

func TestSaveImageMissingSource(t *testing.T) {
	f := newFixture(t, nil)
	img := f.img("gone.png")
	f.store.ReplaceAll(img, []label.Label{label.NewBBox(0, "person", 1, 1, 5, 5)})

	saved, err := f.orch.SaveImage(img)
	assert.Empty(t, saved)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.NoFileExists(t, f.proj.LabelPath(img))
}

func TestSaveImageZeroDimensions(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {4, 4}})
	f.orch = New(f.proj, f.store, DimensionFunc(func(string) (int, int, error) { return 0, 0, nil }), codec.MaskBinary)
	img := f.img("a.png")
	f.store.ReplaceAll(img, []label.Label{label.NewBBox(0, "person", 1, 1, 2, 2)})

	saved, err := f.orch.SaveImage(img)
	assert.Empty(t, saved)
	assert.Error(t, err)
	assert.NoFileExists(t, f.proj.LabelPath(img))
}

func TestDeleteImageArtifacts(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {4, 4}})
	img := f.img("a.png")
	f.store.ReplaceAll(img, []label.Label{
		label.NewBBox(0, "person", 0, 0, 2, 2),
		label.NewMaskLabel(1, "bike", fullMask(4, 4)),
	})
	_, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	stray := filepath.Join(f.proj.GTDir(), "bike", "a.bmp")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	require.NoError(t, f.orch.DeleteImageArtifacts(img))
	assert.NoFileExists(t, f.proj.LabelPath(img))
	assert.NoFileExists(t, filepath.Join(f.proj.GTDir(), "bike", "a.png"))
	assert.NoFileExists(t, stray)

	assert.NoError(t, f.orch.DeleteImageArtifacts(img), "already absent is fine")
}

func TestLoadImageLabelsRoundTrip(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {8, 8}})
	img := f.img("a.png")
	box := label.NewBBox(2, "car", 1, 2, 5, 6)
	f.store.ReplaceAll(img, []label.Label{box, label.NewMaskLabel(0, "person", fullMask(8, 8))})
	_, err := f.orch.SaveImage(img)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(f.proj.GTDir(), "tree"), 0o755))

	labels, err := f.orch.LoadImageLabels(img, f.table, f.table)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.True(t, labels[0].Equal(box))
	assert.Equal(t, label.KindMask, labels[1].Kind)
	assert.Equal(t, "person", labels[1].ClassName)

	id, ok := f.table.ID("tree")
	require.True(t, ok, "gt_image directories are registered as classes")
	assert.Equal(t, 3, id)
}

func TestLoadImageLabelsRegistersUnknownNames(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {10, 10}})
	img := f.img("a.png")
	require.NoError(t, os.WriteFile(f.proj.LabelPath(img), []byte("truck 9 0.5 0.5 0.2 0.2\n"), 0o644))

	var registered []string
	reg := classes.RegistryFunc(func(name string) int {
		registered = append(registered, name)
		return f.table.Add(name)
	})
	labels, err := f.orch.LoadImageLabels(img, f.table, reg)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, 3, labels[0].ClassID)
	assert.Equal(t, []string{"truck"}, registered)
}

func TestSaveAllToleratesBadImages(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {10, 10}, "b.png": {10, 10}, "c.png": {10, 10}})
	require.NoError(t, os.WriteFile(f.img("bad.png"), []byte("not a png"), 0o644))
	require.NoError(t, f.proj.Refresh())

	for _, name := range []string{"a.png", "bad.png", "c.png"} {
		f.store.ReplaceAll(f.img(name), []label.Label{label.NewBBox(0, "person", 1, 1, 3, 3)})
	}
	// b.png was never loaded and must keep whatever is on disk
	require.NoError(t, os.WriteFile(f.proj.LabelPath(f.img("b.png")), []byte("keep 0 0.5 0.5 0.1 0.1\n"), 0o644))

	sum := f.orch.SaveAll()
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.LabelFiles)
	assert.Equal(t, 2, sum.ImageCopies)
	assert.Equal(t, 0, sum.GTImages)
	assert.Contains(t, sum.String(), "saved 2 of 3 images")
	assert.FileExists(t, f.proj.LabelPath(f.img("b.png")))
}

func TestSaveAllCancelled(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {10, 10}})
	f.store.ReplaceAll(f.img("a.png"), []label.Label{label.NewBBox(0, "person", 1, 1, 3, 3)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := f.orch.SaveAllContext(ctx)
	assert.Equal(t, 0, sum.Total)
	assert.NoFileExists(t, f.proj.LabelPath(f.img("a.png")))
}

func TestFileDimensionsCachesByModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writeImage(t, path, 12, 7)

	d := NewFileDimensions(time.Minute)
	w, h, err := d.Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, [2]int{12, 7}, [2]int{w, h})

	writeImage(t, path, 3, 5)
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	w, h, err = d.Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, [2]int{3, 5}, [2]int{w, h})

	_, _, err = d.Dimensions(filepath.Join(dir, "missing.png"))
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestRemoveOrphans(t *testing.T) {
	f := newFixture(t, map[string][2]int{"a.png": {10, 10}})
	labels := f.proj.LabelDir()
	require.NoError(t, os.WriteFile(filepath.Join(labels, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(labels, "gone.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(labels, "classes.json"), []byte("{}"), 0o644))

	orphans, err := f.orch.OrphanLabelFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(labels, "gone.txt")}, orphans)

	removed, err := f.orch.RemoveOrphans()
	require.NoError(t, err)
	assert.Equal(t, orphans, removed)
	assert.NoFileExists(t, filepath.Join(labels, "gone.txt"))
	assert.FileExists(t, filepath.Join(labels, "a.txt"))
	assert.FileExists(t, filepath.Join(labels, "classes.json"))
}
