package autolabel

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"labeltool/internal/errors"
)

// ExecPredictor runs an external inference command once per image. The image
// path is appended to Args and the command must print a Prediction as JSON on
// stdout.
type ExecPredictor struct {
	Command string
	Args    []string
}

// Predict implements Predictor.
func (p ExecPredictor) Predict(ctx context.Context, imagePath string) (Prediction, error) {
	args := append(append([]string(nil), p.Args...), imagePath)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Prediction{}, errors.New(err).
			Component("autolabel").
			Category(errors.CategoryProcess).
			Context("command", p.Command).
			Context("stderr", strings.TrimSpace(stderr.String())).
			Build()
	}

	var pred Prediction
	if err := json.Unmarshal(stdout.Bytes(), &pred); err != nil {
		return Prediction{}, errors.New(err).
			Component("autolabel").
			Category(errors.CategoryFileParsing).
			Context("command", p.Command).
			Build()
	}
	return pred, nil
}
