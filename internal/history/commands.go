// Package history implements the linear undo/redo log. Every user-facing
// label edit is a Command pushed through a Log; commands snapshot whatever they
// overwrite so Revert restores the exact prior list.
//
// Targets that are out of range when a command is applied are tolerated: the
// command does nothing, still notifies, and remembers that it did nothing so
// its Revert is also a no-op.
package history

import (
	"fmt"

	"labeltool/internal/label"
)

// Mutator is the mutable-reference access a command needs. *store.Store
// implements it.
type Mutator interface {
	Mutate(imagePath string, fn func(live []label.Label) []label.Label)
}

// Command is a reified, invertible edit of one image's label list.
type Command interface {
	Apply(m Mutator)
	Revert(m Mutator)
	Description() string
	Image() string
}

// Add appends a label.
type Add struct {
	image string
	label label.Label
	index int // position it landed at, -1 until applied
}

// NewAdd creates an Add command. The label is copied.
func NewAdd(imagePath string, l label.Label) *Add {
	return &Add{image: imagePath, label: l.Clone(), index: -1}
}

func (c *Add) Apply(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		c.index = len(live)
		return append(live, c.label.Clone())
	})
}

func (c *Add) Revert(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		i := c.index
		if i < 0 || i >= len(live) || !live[i].Equal(c.label) {
			// something else moved it; fall back to the last equal value
			i = -1
			for j := len(live) - 1; j >= 0; j-- {
				if live[j].Equal(c.label) {
					i = j
					break
				}
			}
		}
		if i < 0 {
			return live
		}
		return append(live[:i], live[i+1:]...)
	})
}

func (c *Add) Description() string {
	return fmt.Sprintf("Add %s label '%s'", c.label.Kind, c.label.ClassName)
}

func (c *Add) Image() string { return c.image }

// Remove deletes the label at an index.
type Remove struct {
	image   string
	index   int
	removed label.Label
	done    bool
}

// NewRemove creates a Remove command.
func NewRemove(imagePath string, index int) *Remove {
	return &Remove{image: imagePath, index: index}
}

func (c *Remove) Apply(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		c.done = false
		if c.index < 0 || c.index >= len(live) {
			return live
		}
		c.removed = live[c.index].Clone()
		c.done = true
		return append(live[:c.index], live[c.index+1:]...)
	})
}

func (c *Remove) Revert(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		if !c.done {
			return live
		}
		i := min(c.index, len(live))
		live = append(live, label.Label{})
		copy(live[i+1:], live[i:])
		live[i] = c.removed.Clone()
		return live
	})
}

func (c *Remove) Description() string {
	return fmt.Sprintf("Remove label at index %d", c.index)
}

func (c *Remove) Image() string { return c.image }

// Update replaces the label at an index with a new value.
type Update struct {
	image    string
	index    int
	next     label.Label
	previous label.Label
	done     bool
}

// NewUpdate creates an Update command. The replacement is copied.
func NewUpdate(imagePath string, index int, replacement label.Label) *Update {
	return &Update{image: imagePath, index: index, next: replacement.Clone()}
}

func (c *Update) Apply(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		c.done = false
		if c.index < 0 || c.index >= len(live) {
			return live
		}
		c.previous = live[c.index].Clone()
		live[c.index] = c.next.Clone()
		c.done = true
		return live
	})
}

func (c *Update) Revert(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		if c.done && c.index < len(live) {
			live[c.index] = c.previous.Clone()
		}
		return live
	})
}

func (c *Update) Description() string {
	return fmt.Sprintf("Update label at index %d", c.index)
}

func (c *Update) Image() string { return c.image }

// Clear removes every label of an image.
type Clear struct {
	image string
	prior []label.Label
}

// NewClear creates a Clear command.
func NewClear(imagePath string) *Clear {
	return &Clear{image: imagePath}
}

func (c *Clear) Apply(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		c.prior = label.CloneAll(live)
		return live[:0:0]
	})
}

func (c *Clear) Revert(m Mutator) {
	m.Mutate(c.image, func([]label.Label) []label.Label {
		return label.CloneAll(c.prior)
	})
}

func (c *Clear) Description() string { return "Clear labels for image" }

func (c *Clear) Image() string { return c.image }

// SetAll replaces the whole list, e.g. when auto-label results overwrite an
// image's labels.
type SetAll struct {
	image  string
	labels []label.Label
	prior  []label.Label
}

// NewSetAll creates a SetAll command. The labels are copied.
func NewSetAll(imagePath string, labels []label.Label) *SetAll {
	return &SetAll{image: imagePath, labels: label.CloneAll(labels)}
}

func (c *SetAll) Apply(m Mutator) {
	m.Mutate(c.image, func(live []label.Label) []label.Label {
		c.prior = label.CloneAll(live)
		return label.CloneAll(c.labels)
	})
}

func (c *SetAll) Revert(m Mutator) {
	m.Mutate(c.image, func([]label.Label) []label.Label {
		return label.CloneAll(c.prior)
	})
}

func (c *SetAll) Description() string {
	return fmt.Sprintf("Set %d labels", len(c.labels))
}

func (c *SetAll) Image() string { return c.image }
