// Package training prepares a labeled project for an external trainer and
// follows the trainer's progress from its log output.
package training

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"labeltool/internal/errors"
	"labeltool/internal/logging"
)

// DataConfig is the data.yaml consumed by YOLO-style trainers. Field order is
// the file order.
type DataConfig struct {
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// WriteDataYAML writes data.yaml for the given splits and class names
// (index = class id).
func WriteDataYAML(path, train, val string, names []string) error {
	cfg := DataConfig{Train: train, Val: val, NC: len(names), Names: append([]string{}, names...)}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return errors.New(err).Component("training").Category(errors.CategoryGeneric).Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileError("training", err, path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.FileError("training", err, path)
	}
	logging.ForService("training").Info("data.yaml written", "path", path, "classes", len(names))
	return nil
}

// ReadDataYAML loads a data.yaml.
func ReadDataYAML(path string) (DataConfig, error) {
	var cfg DataConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.FileError("training", err, path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.New(err).
			Component("training").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	return cfg, nil
}

// Progress is one parsed training log line.
type Progress struct {
	Epoch  int
	Epochs int
	Loss   float64 // 0 when no loss-like value was found
}

// ParseProgress looks for an "epoch/total" token and takes the first plain
// number in (0, 100) on the same line as the loss.
func ParseProgress(line string) (Progress, bool) {
	parts := strings.Fields(line)
	for _, part := range parts {
		cur, total, ok := strings.Cut(part, "/")
		if !ok || strings.Contains(total, "/") {
			continue
		}
		c, err1 := strconv.Atoi(cur)
		t, err2 := strconv.Atoi(total)
		if err1 != nil || err2 != nil {
			continue
		}

		p := Progress{Epoch: c, Epochs: t}
		for _, tok := range parts {
			v, err := strconv.ParseFloat(tok, 64)
			if err == nil && v > 0 && v < 100 {
				p.Loss = v
				break
			}
		}
		return p, true
	}
	return Progress{}, false
}

// BestWeights returns <saveDir>/weights/best.pt if it exists.
func BestWeights(saveDir string) (string, bool) {
	best := filepath.Join(saveDir, "weights", "best.pt")
	if info, err := os.Stat(best); err == nil && !info.IsDir() {
		return best, true
	}
	return "", false
}
