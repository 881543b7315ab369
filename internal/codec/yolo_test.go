package codec

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labeltool/internal/classes"
	"labeltool/internal/errors"
	"labeltool/internal/label"
	"labeltool/pkg/geometry"
)

func TestWriteYOLOCarScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels", "img.txt")
	l := label.NewBBox(2, "car", 100, 100, 300, 400)

	require.NoError(t, WriteYOLO(path, []label.Label{l}, 800, 600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "car 2 0.250000 0.416667 0.250000 0.500000\n", string(data))
}

func TestWriteYOLORejectsBadDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.txt")
	err := WriteYOLO(path, []label.Label{label.NewBBox(0, "a", 0, 0, 1, 1)}, 0, 600)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.NoFileExists(t, path)
}

func TestWriteYOLOEmptyHasNoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.txt")
	require.NoError(t, WriteYOLO(path, nil, 10, 10))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPolygonLine(t *testing.T) {
	p := label.NewPolygon(1, "road", []geometry.Point2D{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 25}})
	line, ok := FormatYOLOLine(p, 100, 50)
	require.True(t, ok)
	assert.Equal(t, "road 1 0.000000 0.000000 0.500000 0.000000 0.500000 0.500000", line)
}

func TestBBoxRoundTrip(t *testing.T) {
	tbl := classes.NewTable("a", "b", "car")
	orig := label.NewBBox(2, "car", 123.4567, 89.0123, 456.789, 321.0987)

	line, ok := FormatYOLOLine(orig, 1920, 1080)
	require.True(t, ok)
	got, err := ParseYOLOLine(line, 1920, 1080, tbl, tbl)
	require.NoError(t, err)

	assert.Equal(t, label.KindBBox, got.Kind)
	assert.Equal(t, 2, got.ClassID)
	assert.Equal(t, "car", got.ClassName)
	for i := range orig.Points {
		assert.InDelta(t, orig.Points[i].X, got.Points[i].X, 1e-3)
		assert.InDelta(t, orig.Points[i].Y, got.Points[i].Y, 1e-3)
	}
}

func TestRoundTripTypicalSize(t *testing.T) {
	orig := label.NewBBox(0, "a", 100, 100, 300, 400)
	line, _ := FormatYOLOLine(orig, 800, 600)
	got, err := ParseYOLOLine(line, 800, 600, nil, nil)
	require.NoError(t, err)
	for i := range orig.Points {
		assert.LessOrEqual(t, math.Abs(orig.Points[i].X-got.Points[i].X), 1e-4)
		assert.LessOrEqual(t, math.Abs(orig.Points[i].Y-got.Points[i].Y), 1e-4)
	}
}

func TestLegacyAndCurrentFormatsAgree(t *testing.T) {
	tbl := classes.NewTable("person")

	legacy, err := ParseYOLOLine("0 0.5 0.5 0.2 0.3", 100, 100, tbl, tbl)
	require.NoError(t, err)
	current, err := ParseYOLOLine("person 0 0.5 0.5 0.2 0.3", 100, 100, tbl, tbl)
	require.NoError(t, err)

	assert.True(t, legacy.Equal(current))
	assert.Equal(t, "person", legacy.ClassName)
	assert.Equal(t, 1, tbl.Len(), "no registration for known names")
}

func TestLegacyFallsBackToNumericName(t *testing.T) {
	got, err := ParseYOLOLine("4 0.5 0.5 0.2 0.3", 100, 100, classes.NewTable(), nil)
	require.NoError(t, err)
	assert.Equal(t, "4", got.ClassName)
	assert.Equal(t, 4, got.ClassID)
}

func TestLegacyUnknownIDIsRegistered(t *testing.T) {
	tbl := classes.NewTable("cat")
	got, err := ParseYOLOLine("5 0.5 0.5 0.2 0.3", 100, 100, tbl, tbl)
	require.NoError(t, err)
	assert.Equal(t, "5", got.ClassName)
	assert.Equal(t, 1, got.ClassID, "registered id replaces the file id")
	assert.Equal(t, []string{"cat", "5"}, tbl.List())

	// the same id again resolves to the registered entry
	again, err := ParseYOLOLine("5 0.1 0.1 0.2 0.3", 100, 100, tbl, tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, again.ClassID)
	assert.Equal(t, 2, tbl.Len())
}

func TestNumericLookingNamesUseCurrentFormat(t *testing.T) {
	for _, name := range []string{"nan", "inf", "1e3", "0x1"} {
		tbl := classes.NewTable("cat")
		got, err := ParseYOLOLine(name+" 0 0.5 0.5 0.2 0.3", 100, 100, tbl, tbl)
		require.NoError(t, err, name)
		assert.Equal(t, name, got.ClassName)
		assert.Equal(t, 1, got.ClassID, name)
		assert.Equal(t, label.KindBBox, got.Kind, name)
	}
}

func TestUnknownNameIsRegistered(t *testing.T) {
	tbl := classes.NewTable("cat")
	got, err := ParseYOLOLine("dog 7 0.1 0.1 0.5 0.1 0.5 0.5", 10, 10, tbl, tbl)
	require.NoError(t, err)

	assert.Equal(t, label.KindPolygon, got.Kind)
	assert.Equal(t, 1, got.ClassID, "registered id replaces the file id")
	assert.Equal(t, []string{"cat", "dog"}, tbl.List())
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, line := range []string{
		"car 1 0.5 0.5",
		"car x 0.5 0.5 0.1 0.1",
		"car 1 0.5 0.5 0.1 0.1 0.2",
		"car 1 0.5 0.5 nope 0.1",
		"1.5 0.5 0.5 0.1 0.1",
	} {
		_, err := ParseYOLOLine(line, 10, 10, nil, nil)
		assert.Error(t, err, line)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing), line)
	}
}

func TestReadYOLOSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.txt")
	content := "car 0 0.5 0.5 0.2 0.2\n\ngarbage\ncar 0 0.1 0.1 0.2 0.1 0.2 0.2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl := classes.NewTable("car")
	labels, err := ReadYOLO(path, 100, 100, tbl, tbl)
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, label.KindBBox, labels[0].Kind)
	assert.Equal(t, label.KindPolygon, labels[1].Kind)
	assert.False(t, labels[0].Color.IsExplicit())
}

func TestReadYOLOMissingFile(t *testing.T) {
	labels, err := ReadYOLO(filepath.Join(t.TempDir(), "none.txt"), 10, 10, nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, labels)
}
