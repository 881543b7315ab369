// Package session ties one opened project to its label store, undo log and
// persistence orchestrator.
//
// A Session is owned by a single goroutine. Background workers never mutate it
// directly: they Post closures, and the owner runs them with Drain.
package session

import (
	"context"
	"sync"
	"time"

	"labeltool/internal/autolabel"
	"labeltool/internal/classes"
	"labeltool/internal/codec"
	"labeltool/internal/history"
	"labeltool/internal/label"
	"labeltool/internal/logging"
	"labeltool/internal/persist"
	"labeltool/internal/project"
	"labeltool/internal/store"
)

// Options configure a session.
type Options struct {
	MaskMode     codec.MaskMode
	HistoryLimit int           // 0 = unlimited
	AutoSave     bool          // save the previous image on SwitchImage
	DimensionTTL time.Duration // image header cache lifetime
	Dimensions   persist.DimensionSource
}

// Session is one project being annotated.
type Session struct {
	Project *project.Project
	Classes *classes.Table
	Store   *store.Store
	History *history.Log
	Persist *persist.Orchestrator

	settings *project.Settings
	dims     persist.DimensionSource
	autoSave bool
	current  string

	qmu    sync.Mutex
	queue  []func(*Session)
	notify chan struct{}
}

// Open opens dir and restores its project settings.
func Open(dir string, opts Options) (*Session, error) {
	p, err := project.Open(dir)
	if err != nil {
		return nil, err
	}
	settings, err := p.LoadSettings()
	if err != nil {
		logging.ForService("session").Warn("ignoring unreadable project settings", "error", err)
		settings = project.NewSettings()
	}
	if ld := settings.ResolveLabelDir(p.Dir()); ld != "" {
		if err := p.SetLabelDir(ld); err != nil {
			return nil, err
		}
	}

	mode := opts.MaskMode
	if settings.MaskMode != "" {
		if m, err := codec.ParseMaskMode(settings.MaskMode); err == nil {
			mode = m
		}
	}

	dims := opts.Dimensions
	if dims == nil {
		ttl := opts.DimensionTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		dims = persist.NewFileDimensions(ttl)
	}

	st := store.New()
	log := history.NewLog(st)
	log.SetLimit(opts.HistoryLimit)

	s := &Session{
		Project:  p,
		Classes:  classes.FromClasses(settings.Classes),
		Store:    st,
		History:  log,
		Persist:  persist.New(p, st, dims, mode),
		settings: settings,
		dims:     dims,
		autoSave: opts.AutoSave,
		notify:   make(chan struct{}, 1),
	}
	return s, nil
}

// Post queues fn to run on the owning goroutine. Safe from any goroutine.
func (s *Session) Post(fn func(*Session)) {
	s.qmu.Lock()
	s.queue = append(s.queue, fn)
	s.qmu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pending signals that Post was called since the last Drain.
func (s *Session) Pending() <-chan struct{} { return s.notify }

// Drain runs queued work in posting order and returns how many ran.
func (s *Session) Drain() int {
	s.qmu.Lock()
	work := s.queue
	s.queue = nil
	s.qmu.Unlock()
	for _, fn := range work {
		fn(s)
	}
	return len(work)
}

// EnsureLoaded rehydrates an image's labels from disk once. Images already
// materialized in the store are left alone so unsaved edits survive.
func (s *Session) EnsureLoaded(imagePath string) error {
	if s.Store.Loaded(imagePath) {
		return nil
	}
	labels, err := s.Persist.LoadImageLabels(imagePath, s.Classes, s.Classes)
	if err != nil && labels == nil {
		// nothing usable; leave the image unloaded so a later call retries
		return err
	}
	s.Store.ReplaceAll(imagePath, labels)
	return err
}

// Labels returns a copy of an image's labels, loading them first if needed.
func (s *Session) Labels(imagePath string) []label.Label {
	if err := s.EnsureLoaded(imagePath); err != nil {
		logging.ForService("session").Warn("labels not loaded", "image", imagePath, "error", err)
	}
	return s.Store.Get(imagePath)
}

// SwitchImage makes imagePath current, saving the previous one first when
// auto-save is on.
func (s *Session) SwitchImage(imagePath string) error {
	if s.autoSave && s.current != "" && s.current != imagePath {
		if _, err := s.Save(s.current); err != nil {
			logging.ForService("session").Warn("auto-save failed", "image", s.current, "error", err)
		}
	}
	s.current = imagePath
	return s.EnsureLoaded(imagePath)
}

// Current returns the current image path.
func (s *Session) Current() string { return s.current }

// Undo reverts the last edit.
func (s *Session) Undo() bool { return s.History.Undo() }

// Redo re-applies the last undone edit.
func (s *Session) Redo() bool { return s.History.Redo() }

// Save writes one image.
func (s *Session) Save(imagePath string) ([]string, error) {
	return s.Persist.SaveImage(imagePath)
}

// SaveAll writes every loaded image and the project settings.
func (s *Session) SaveAll(ctx context.Context) persist.Summary {
	sum := s.Persist.SaveAllContext(ctx)
	if err := s.SaveSettings(); err != nil {
		logging.ForService("session").Error("failed to save project settings", "error", err)
	}
	return sum
}

// ExcludeImage deletes an image's label artifacts and drops it from the store.
// The deletion cannot be undone.
func (s *Session) ExcludeImage(imagePath string) error {
	err := s.Persist.DeleteImageArtifacts(imagePath)
	s.Store.RemoveImage(imagePath)
	return err
}

// ApplyPrediction converts an auto-label result into labels and applies it
// through the undo log, replacing or merging with the existing labels.
// It must run on the owning goroutine.
func (s *Session) ApplyPrediction(imagePath string, pred autolabel.Prediction, threshold float64, replace bool) int {
	labels := autolabel.ToLabels(pred, autolabel.Options{
		Threshold: threshold,
		Lookup:    s.Classes,
		Registry:  s.Classes,
	})
	if err := s.EnsureLoaded(imagePath); err != nil {
		logging.ForService("session").Warn("applying prediction without disk labels", "image", imagePath, "error", err)
	}
	if replace {
		s.History.SetLabels(imagePath, labels)
		return len(labels)
	}
	for _, l := range labels {
		s.History.AddLabel(imagePath, l)
	}
	return len(labels)
}

// AutoLabelSink returns a worker sink that hands results to the owning
// goroutine via Post.
func (s *Session) AutoLabelSink(threshold float64, replace bool) func(autolabel.Result) {
	return func(r autolabel.Result) {
		if r.Err != nil {
			return
		}
		s.Post(func(s *Session) {
			s.ApplyPrediction(r.Image, r.Prediction, threshold, replace)
		})
	}
}

// SetMaskMode changes the mask encoding for later saves.
func (s *Session) SetMaskMode(mode codec.MaskMode) {
	s.Persist.SetMaskMode(mode)
	s.settings.MaskMode = mode.String()
}

// SetLabelDir switches the label directory; "" restores the default.
func (s *Session) SetLabelDir(dir string) error {
	if err := s.Project.SetLabelDir(dir); err != nil {
		return err
	}
	if dir == "" {
		s.settings.SetLabelDir(s.Project.Dir(), "")
	} else {
		s.settings.SetLabelDir(s.Project.Dir(), s.Project.LabelDir())
	}
	return nil
}

// SaveSettings writes the class table, label directory and mask mode.
func (s *Session) SaveSettings() error {
	s.settings.Classes = s.Classes.Classes()
	s.settings.MaskMode = s.Persist.MaskMode().String()
	return s.Project.SaveSettings(s.settings)
}

// Close saves settings and drops the undo history, the loaded labels and any
// cached image dimensions. Unsaved label edits are discarded.
func (s *Session) Close() error {
	s.Drain()
	err := s.SaveSettings()
	s.History.Clear()
	s.Store.Reset()
	s.current = ""
	if f, ok := s.dims.(interface{ Flush() }); ok {
		f.Flush()
	}
	return err
}
