package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("boom")).Build()
	assert.Equal(t, "boom", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := Newf("bad line %d", 3).Context("line", 3).Build()
	ctx := ee.GetContext()
	ctx["line"] = 99
	assert.Equal(t, 3, ee.GetContext()["line"])
}

func TestIsCategoryThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := FileError("persist", fs.ErrPermission, "/tmp/x.txt")
	wrapped := fmt.Errorf("save failed: %w", inner)

	assert.True(t, IsCategory(wrapped, CategoryFileIO))
	assert.False(t, IsCategory(wrapped, CategoryValidation))
	assert.True(t, Is(wrapped, fs.ErrPermission))

	var ee *EnhancedError
	require.True(t, As(wrapped, &ee))
	assert.Equal(t, "/tmp/x.txt", ee.GetContext()["path"])
}

func TestIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := ValidationError("codec", "invalid image dimensions %dx%d", 0, 10)
	b := ValidationError("persist", "other")
	assert.True(t, Is(a, b))
	assert.False(t, Is(a, New(nil).Category(CategoryFileIO).Build()))
}

func TestIsCategorySearchesJoinedSiblings(t *testing.T) {
	t.Parallel()

	joined := Join(
		FileError("persist", fs.ErrPermission, "/tmp/a.txt"),
		fmt.Errorf("mask: %w", ValidationError("codec", "bad size")),
	)
	assert.True(t, IsCategory(joined, CategoryFileIO))
	assert.True(t, IsCategory(joined, CategoryValidation))
	assert.False(t, IsCategory(joined, CategoryState))

	nested := fmt.Errorf("save all: %w", Join(fmt.Errorf("plain"), joined))
	assert.True(t, IsCategory(nested, CategoryValidation))
	assert.False(t, IsCategory(nil, CategoryValidation))
}
