package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labeltool/internal/label"
)

func TestGetReturnsIndependentCopy(t *testing.T) {
	s := New()
	s.ReplaceAll("a.jpg", []label.Label{label.NewBBox(0, "cat", 0, 0, 10, 10)})

	got := s.Get("a.jpg")
	got[0].ClassName = "changed"
	got[0].Points[0].X = 99
	got = append(got, label.NewBBox(1, "dog", 0, 0, 1, 1))

	again := s.Get("a.jpg")
	require.Len(t, again, 1)
	assert.Equal(t, "cat", again[0].ClassName)
	assert.Equal(t, 0.0, again[0].Points[0].X)
}

func TestGetUnknownImageHasNoSideEffect(t *testing.T) {
	s := New()
	calls := 0
	s.Subscribe(func(string) { calls++ })

	assert.Empty(t, s.Get("missing.jpg"))
	assert.False(t, s.Loaded("missing.jpg"))
	assert.Empty(t, s.Images())
	assert.Zero(t, calls)
}

func TestReplaceAllNotifiesAndMarksLoaded(t *testing.T) {
	s := New()
	var seen []string
	var countAtNotify int
	s.Subscribe(func(p string) {
		seen = append(seen, p)
		countAtNotify = s.Count(p)
	})

	s.ReplaceAll("a.jpg", []label.Label{label.NewBBox(0, "cat", 0, 0, 1, 1)})
	assert.Equal(t, []string{"a.jpg"}, seen)
	assert.Equal(t, 1, countAtNotify, "listeners observe the final state")

	s.ReplaceAll("b.jpg", nil)
	assert.True(t, s.Loaded("b.jpg"), "explicit empty set is distinct from never loaded")
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, s.Images())
}

func TestRemoveImage(t *testing.T) {
	s := New()
	s.ReplaceAll("a.jpg", []label.Label{label.NewBBox(0, "cat", 0, 0, 1, 1)})
	notified := 0
	s.Subscribe(func(string) { notified++ })

	s.RemoveImage("a.jpg")
	assert.Equal(t, 0, s.Count("a.jpg"))
	assert.False(t, s.Loaded("a.jpg"))
	assert.Equal(t, 1, notified)
}

func TestUnsubscribe(t *testing.T) {
	s := New()
	calls := 0
	unsub := s.Subscribe(func(string) { calls++ })
	s.ReplaceAll("a.jpg", nil)
	unsub()
	s.ReplaceAll("a.jpg", nil)
	assert.Equal(t, 1, calls)
}

func TestAt(t *testing.T) {
	s := New()
	s.ReplaceAll("a.jpg", []label.Label{label.NewBBox(3, "car", 0, 0, 1, 1)})

	l, ok := s.At("a.jpg", 0)
	require.True(t, ok)
	assert.Equal(t, 3, l.ClassID)

	_, ok = s.At("a.jpg", 1)
	assert.False(t, ok)
}
