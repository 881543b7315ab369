package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"labeltool/internal/classes"
	"labeltool/internal/errors"
)

// SettingsFileName is the per-project settings file inside the project folder.
const SettingsFileName = "labeltool.json"

// Settings is the per-project file.
type Settings struct {
	Version  int       `json:"version"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	// Class table, index = class id
	Classes []classes.Class `json:"classes"`

	// Custom label directory (absolute, or relative to the project folder)
	LabelDir string `json:"label_dir,omitempty"`

	// Mask export encoding: "binary" or "semantic"; empty = application default
	MaskMode string `json:"mask_mode,omitempty"`
}

// NewSettings creates settings with defaults.
func NewSettings() *Settings {
	now := time.Now()
	return &Settings{
		Version:  1,
		Created:  now,
		Modified: now,
	}
}

// SettingsPath returns the settings file path for the project.
func (p *Project) SettingsPath() string {
	return filepath.Join(p.dir, SettingsFileName)
}

// LoadSettings reads the project settings. A missing file yields defaults.
func (p *Project) LoadSettings() (*Settings, error) {
	path := p.SettingsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSettings(), nil
		}
		return nil, errors.FileError("project", err, path)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	return &s, nil
}

// SaveSettings writes the project settings.
func (p *Project) SaveSettings(s *Settings) error {
	s.Modified = time.Now()
	if s.Created.IsZero() {
		s.Created = s.Modified
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	path := p.SettingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileError("project", err, path)
	}
	return nil
}

// ResolveLabelDir returns the absolute custom label directory, or "" when unset.
func (s *Settings) ResolveLabelDir(projectDir string) string {
	if s.LabelDir == "" {
		return ""
	}
	if filepath.IsAbs(s.LabelDir) {
		return s.LabelDir
	}
	return filepath.Join(projectDir, s.LabelDir)
}

// SetLabelDir stores dir relative to the project folder when possible.
func (s *Settings) SetLabelDir(projectDir, dir string) {
	if dir == "" {
		s.LabelDir = ""
		return
	}
	if rel, err := filepath.Rel(projectDir, dir); err == nil {
		s.LabelDir = rel
		return
	}
	s.LabelDir = dir
}
