package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labeltool/internal/label"
	"labeltool/internal/store"
	"labeltool/pkg/geometry"
)

const img = "/data/img1.jpg"

func box(id int, name string, x float64) label.Label {
	return label.NewBBox(id, name, x, x, x+10, x+20)
}

func newLog() (*store.Store, *Log) {
	s := store.New()
	return s, NewLog(s)
}

func TestAddAddUndoUndoRedo(t *testing.T) {
	s, log := newLog()
	l1, l2 := box(0, "cat", 1), box(1, "dog", 2)

	log.AddLabel(img, l1)
	log.AddLabel(img, l2)
	require.True(t, log.Undo())
	require.True(t, log.Undo())
	require.True(t, log.Redo())

	got := s.Get(img)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(l1))
}

func TestUndoRedoBounds(t *testing.T) {
	_, log := newLog()
	assert.False(t, log.Undo())
	assert.False(t, log.Redo())
	assert.False(t, log.CanUndo())

	log.AddLabel(img, box(0, "cat", 0))
	assert.True(t, log.CanUndo())
	assert.False(t, log.CanRedo())
	assert.False(t, log.Redo())
	assert.Equal(t, "Add bbox label 'cat'", log.UndoText())
	assert.Equal(t, "", log.RedoText())
}

func TestPushDiscardsRedoTail(t *testing.T) {
	s, log := newLog()
	log.AddLabel(img, box(0, "a", 0))
	log.AddLabel(img, box(0, "b", 1))
	log.Undo()
	assert.Equal(t, 2, log.Len())

	log.AddLabel(img, box(0, "c", 2))
	assert.Equal(t, 2, log.Len())
	assert.Equal(t, 2, log.Cursor())
	assert.False(t, log.Redo())

	names := []string{}
	for _, l := range s.Get(img) {
		names = append(names, l.ClassName)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestInverseLaw(t *testing.T) {
	s, log := newLog()
	other := "/data/img2.jpg"
	s.ReplaceAll(img, []label.Label{box(0, "a", 0), box(1, "b", 5), box(2, "c", 9)})
	s.ReplaceAll(other, []label.Label{box(3, "d", 1)})

	before := s.Get(img)
	beforeOther := s.Get(other)

	poly := label.NewPolygon(4, "p", []geometry.Point2D{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}})
	cmds := []Command{
		NewAdd(img, poly),
		NewRemove(img, 1),
		NewUpdate(img, 0, box(7, "z", 3)),
		NewClear(other),
		NewAdd(other, box(0, "e", 4)),
		NewRemove(img, 0),
		NewSetAll(img, []label.Label{box(5, "s", 8)}),
		NewUpdate(img, 0, box(6, "u", 2)),
		NewClear(img),
	}
	for _, c := range cmds {
		log.Push(c)
	}
	for range cmds {
		require.True(t, log.Undo())
	}

	assertSameLabels(t, before, s.Get(img))
	assertSameLabels(t, beforeOther, s.Get(other))

	// and forward again reproduces the end state
	for range cmds {
		require.True(t, log.Redo())
	}
	assert.Empty(t, s.Get(img))
	require.Len(t, s.Get(other), 1)
	assert.Equal(t, "e", s.Get(other)[0].ClassName)
}

func TestOutOfRangeIsNotifiedNoOp(t *testing.T) {
	s, log := newLog()
	s.ReplaceAll(img, []label.Label{box(0, "a", 0)})
	notified := 0
	s.Subscribe(func(string) { notified++ })

	log.RemoveLabel(img, 5)
	log.UpdateLabel(img, -1, box(1, "b", 0))
	assert.Equal(t, 2, notified)
	require.Len(t, s.Get(img), 1)

	// undoing a no-op is itself a no-op
	log.Undo()
	log.Undo()
	assert.Equal(t, 4, notified)
	require.Len(t, s.Get(img), 1)
	assert.Equal(t, "a", s.Get(img)[0].ClassName)
}

func TestRemoveRestoresPosition(t *testing.T) {
	s, log := newLog()
	s.ReplaceAll(img, []label.Label{box(0, "a", 0), box(1, "b", 1), box(2, "c", 2)})

	log.RemoveLabel(img, 1)
	assert.Equal(t, 2, s.Count(img))
	log.Undo()

	got := s.Get(img)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[1].ClassName)
}

func TestSnapshotsSurviveLaterEdits(t *testing.T) {
	s, log := newLog()
	orig := box(0, "a", 0)
	s.ReplaceAll(img, []label.Label{orig})

	log.UpdateLabel(img, 0, box(0, "a", 50))

	// an outside copy being edited must not reach the snapshot
	cp := s.Get(img)
	cp[0].Points[0].X = -1

	log.Undo()
	got := s.Get(img)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(orig))
}

func TestLimitDropsOldest(t *testing.T) {
	s, log := newLog()
	log.SetLimit(2)
	log.AddLabel(img, box(0, "a", 0))
	log.AddLabel(img, box(0, "b", 0))
	log.AddLabel(img, box(0, "c", 0))

	assert.Equal(t, 2, log.Len())
	assert.True(t, log.Undo())
	assert.True(t, log.Undo())
	assert.False(t, log.Undo())
	require.Len(t, s.Get(img), 1)
	assert.Equal(t, "a", s.Get(img)[0].ClassName)
}

func TestClearHistoryKeepsStore(t *testing.T) {
	s, log := newLog()
	log.AddLabel(img, box(0, "a", 0))
	log.Clear()
	assert.False(t, log.CanUndo())
	assert.Equal(t, 1, s.Count(img))
}

func assertSameLabels(t *testing.T, want, got []label.Label) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Truef(t, want[i].Equal(got[i]), "label %d: want %s got %s", i, want[i], got[i])
	}
}
