// Package classes holds the ordered class table (index = class id) and the
// append-only registry used when disk content names an unknown class.
package classes

import (
	"strconv"
	"sync"

	"labeltool/pkg/colorutil"
)

// Class is one entry of the class table.
type Class struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Lookup is the read side of the class table.
type Lookup interface {
	Name(id int) (string, bool)
	ID(name string) (int, bool)
}

// Registry appends a new class and returns its id. Registering a name that
// already exists returns the existing id.
type Registry interface {
	Register(name string) int
}

// RegistryFunc adapts a plain callback to Registry.
type RegistryFunc func(name string) int

// Register calls f(name).
func (f RegistryFunc) Register(name string) int { return f(name) }

// Table is the ordered list of classes.
type Table struct {
	mu      sync.RWMutex
	classes []Class
	onAdd   []func(id int, c Class)
}

// NewTable creates a table from names; colors come from the class palette.
func NewTable(names ...string) *Table {
	t := &Table{}
	for _, n := range names {
		t.Add(n)
	}
	return t
}

// FromClasses creates a table from stored entries. Empty colors are filled from the palette.
func FromClasses(cs []Class) *Table {
	t := &Table{classes: make([]Class, len(cs))}
	for i, c := range cs {
		if c.Color == "" {
			c.Color = colorutil.ForClass(i)
		}
		t.classes[i] = c
	}
	return t
}

// OnAdd registers a callback invoked (outside the lock) whenever a class is appended.
func (t *Table) OnAdd(fn func(id int, c Class)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAdd = append(t.onAdd, fn)
}

// Add appends name unless it already exists and returns its id.
func (t *Table) Add(name string) int {
	t.mu.Lock()
	for i, c := range t.classes {
		if c.Name == name {
			t.mu.Unlock()
			return i
		}
	}
	id := len(t.classes)
	c := Class{Name: name, Color: colorutil.ForClass(id)}
	t.classes = append(t.classes, c)
	listeners := t.onAdd
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(id, c)
	}
	return id
}

// Register implements Registry.
func (t *Table) Register(name string) int {
	return t.Add(name)
}

// Name returns the class name for id.
func (t *Table) Name(id int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.classes) {
		return "", false
	}
	return t.classes[id].Name, true
}

// NameOr returns the class name for id, or the stringified id when absent.
func (t *Table) NameOr(id int) string {
	if n, ok := t.Name(id); ok {
		return n
	}
	return strconv.Itoa(id)
}

// ID returns the id of the first class named name.
func (t *Table) ID(name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, c := range t.classes {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Color returns the display color of a class, falling back to the palette.
func (t *Table) Color(id int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id >= 0 && id < len(t.classes) && t.classes[id].Color != "" {
		return t.classes[id].Color
	}
	return colorutil.ForClass(id)
}

// Len returns the number of classes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.classes)
}

// Names returns the id -> name mapping.
func (t *Table) Names() map[int]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]string, len(t.classes))
	for i, c := range t.classes {
		out[i] = c.Name
	}
	return out
}

// List returns the class names in id order.
func (t *Table) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.classes))
	for i, c := range t.classes {
		out[i] = c.Name
	}
	return out
}

// Classes returns a copy of the entries, for persistence.
func (t *Table) Classes() []Class {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Class, len(t.classes))
	copy(out, t.classes)
	return out
}

// Rename changes a class name. Existing labels keep the name they were created with.
func (t *Table) Rename(id int, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.classes) {
		return false
	}
	t.classes[id].Name = name
	return true
}

// SetColor overrides the display color of a class.
func (t *Table) SetColor(id int, hex string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.classes) {
		return false
	}
	t.classes[id].Color = hex
	return true
}
