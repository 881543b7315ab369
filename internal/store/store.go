// Package store holds the authoritative in-memory annotation dataset: one
// ordered label list per image. List index is the label's stable handle and
// its z-order.
package store

import (
	"sort"
	"sync"

	"labeltool/internal/label"
)

// Listener is called with the image path after every successful mutation.
type Listener func(imagePath string)

// Store maps image paths to ordered label lists.
type Store struct {
	mu sync.RWMutex

	labels map[string][]label.Label
	loaded map[string]bool // explicitly materialized (possibly empty)

	listeners   map[int]Listener
	nextListen  int
	listenOrder []int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		labels:    make(map[string][]label.Label),
		loaded:    make(map[string]bool),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a change listener and returns a function that removes it.
// Listeners run synchronously on the mutating goroutine after the store reached
// its final state.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = fn
	s.listenOrder = append(s.listenOrder, id)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		for i, v := range s.listenOrder {
			if v == id {
				s.listenOrder = append(s.listenOrder[:i], s.listenOrder[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) emit(imagePath string) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listenOrder))
	for _, id := range s.listenOrder {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(imagePath)
	}
}

// Get returns an independent deep copy of the labels for an image. Unknown
// images yield an empty slice and are not materialized.
func (s *Store) Get(imagePath string) []label.Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return label.CloneAll(s.labels[imagePath])
}

// At returns a copy of one label.
func (s *Store) At(imagePath string, index int) (label.Label, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls := s.labels[imagePath]
	if index < 0 || index >= len(ls) {
		return label.Label{}, false
	}
	return ls[index].Clone(), true
}

// Count returns the number of labels on an image.
func (s *Store) Count(imagePath string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels[imagePath])
}

// Loaded reports whether labels for the image have been materialized, either
// by an edit or by ReplaceAll. An explicitly emptied image is still loaded.
func (s *Store) Loaded(imagePath string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[imagePath]
}

// Images returns the materialized image paths, sorted.
func (s *Store) Images() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.loaded))
	for p := range s.loaded {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Mutate runs fn against the live label list of an image and stores the list
// fn returns. It is the mutable-reference path used by undo commands; every
// other caller should go through the command log. The change is always
// notified, even if fn made no change.
func (s *Store) Mutate(imagePath string, fn func(live []label.Label) []label.Label) {
	s.mu.Lock()
	s.labels[imagePath] = fn(s.labels[imagePath])
	s.loaded[imagePath] = true
	s.mu.Unlock()

	s.emit(imagePath)
}

// ReplaceAll assigns the full label list without undo tracking. Used for disk
// loads; notifies like any other mutation.
func (s *Store) ReplaceAll(imagePath string, labels []label.Label) {
	cp := label.CloneAll(labels)
	s.Mutate(imagePath, func([]label.Label) []label.Label { return cp })
}

// RemoveImage purges all stored labels for an image.
func (s *Store) RemoveImage(imagePath string) {
	s.mu.Lock()
	delete(s.labels, imagePath)
	delete(s.loaded, imagePath)
	s.mu.Unlock()

	s.emit(imagePath)
}

// Reset drops every image, e.g. when a different folder is opened.
func (s *Store) Reset() {
	s.mu.Lock()
	s.labels = make(map[string][]label.Label)
	s.loaded = make(map[string]bool)
	s.mu.Unlock()
}
