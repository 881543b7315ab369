// Package config holds the per-user application settings.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"labeltool/internal/errors"
	"labeltool/internal/logging"
)

// MaxRecent caps the recent directory and model lists.
const MaxRecent = 10

const (
	keyLanguage      = "language"
	keyAutoSave      = "auto_save"
	keyConfidence    = "default_confidence"
	keyModelType     = "default_model_type"
	keyMaskMode      = "mask_mode"
	keyHistoryLimit  = "history_limit"
	keyRecentDirs    = "recent_dirs"
	keyRecentModels  = "recent_models"
	keyLogLevel      = "log.level"
	keyLogFile       = "log.file"
	keyTrainerCmd    = "trainer.command"
	keyPredictorCmd  = "predictor.command"
	keyPredictorArgs = "predictor.args"
)

// Settings is the typed view of the config file.
type Settings struct {
	Language          string   `mapstructure:"language"`
	AutoSave          bool     `mapstructure:"auto_save"`
	DefaultConfidence float64  `mapstructure:"default_confidence"`
	DefaultModelType  string   `mapstructure:"default_model_type"`
	MaskMode          string   `mapstructure:"mask_mode"`
	HistoryLimit      int      `mapstructure:"history_limit"`
	RecentDirs        []string `mapstructure:"recent_dirs"`
	RecentModels      []string `mapstructure:"recent_models"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`

	Trainer struct {
		Command string `mapstructure:"command"`
	} `mapstructure:"trainer"`

	Predictor struct {
		Command string   `mapstructure:"command"`
		Args    []string `mapstructure:"args"`
	} `mapstructure:"predictor"`
}

// Config wraps a viper instance bound to one config directory.
type Config struct {
	mu  sync.Mutex
	v   *viper.Viper
	dir string
}

// DefaultDir returns $XDG_CONFIG_HOME/labeltool, falling back to
// ~/.config/labeltool.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "labeltool"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New(err).Component("config").Category(errors.CategoryConfig).Build()
	}
	return filepath.Join(home, ".config", "labeltool"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyLanguage, "en")
	v.SetDefault(keyAutoSave, true)
	v.SetDefault(keyConfidence, 0.5)
	v.SetDefault(keyModelType, "RT-DETR")
	v.SetDefault(keyMaskMode, "binary")
	v.SetDefault(keyHistoryLimit, 200)
	v.SetDefault(keyRecentDirs, []string{})
	v.SetDefault(keyRecentModels, []string{})
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFile, "")
	v.SetDefault(keyTrainerCmd, "yolo")
	v.SetDefault(keyPredictorCmd, "")
	v.SetDefault(keyPredictorArgs, []string{})
}

// Load reads config.yaml from dir (DefaultDir when empty). A missing file is
// created with defaults. LABELTOOL_* environment variables override file
// values.
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("labeltool")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	c := &Config{v: v, dir: dir}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("config").
				Category(errors.CategoryConfig).
				Context("dir", dir).
				Build()
		}
		if err := c.createDefault(); err != nil {
			return nil, err
		}
	}
	logging.ForService("config").Debug("config loaded", "file", c.Path())
	return c, nil
}

func (c *Config) createDefault() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.FileError("config", err, c.dir)
	}
	path := c.Path()
	if err := c.v.SafeWriteConfigAs(path); err != nil {
		return errors.FileError("config", err, path)
	}
	logging.ForService("config").Info("created default config", "path", path)
	return nil
}

// Path is the config file location.
func (c *Config) Path() string {
	return filepath.Join(c.dir, "config.yaml")
}

// Viper exposes the underlying instance for flag binding.
func (c *Config) Viper() *viper.Viper { return c.v }

// Settings decodes the current values.
func (c *Config) Settings() (Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Settings
	if err := c.v.Unmarshal(&s); err != nil {
		return s, errors.New(err).Component("config").Category(errors.CategoryConfig).Build()
	}
	return s, nil
}

// Set updates one key in memory.
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, value)
}

// Save writes the current values back to config.yaml.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.v.WriteConfigAs(c.Path()); err != nil {
		return errors.FileError("config", err, c.Path())
	}
	return nil
}

// AddRecentDir moves dir to the front of the recent directory list.
func (c *Config) AddRecentDir(dir string) {
	c.addRecent(keyRecentDirs, dir)
}

// AddRecentModel moves path to the front of the recent model list.
func (c *Config) AddRecentModel(path string) {
	c.addRecent(keyRecentModels, path)
}

func (c *Config) addRecent(key, item string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, AddRecent(c.v.GetStringSlice(key), item, MaxRecent))
}

// AddRecent returns list with item at the front, without duplicates, capped
// at limit entries.
func AddRecent(list []string, item string, limit int) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, item)
	for _, s := range list {
		if s != item {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return slices.Clip(out)
}
