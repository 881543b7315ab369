package training

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"labeltool/internal/errors"
	"labeltool/internal/logging"
)

var savedToRe = regexp.MustCompile(`(?i)results saved to\s+(\S+)`)

// Runner runs an external trainer process and scrapes its output.
type Runner struct {
	Command string
	Args    []string
	Dir     string

	OnLine     func(line string)
	OnProgress func(Progress)
}

// Result describes a finished training run.
type Result struct {
	SaveDir     string // as reported by the trainer, "" if never seen
	BestWeights string // "" if not found
}

// Run starts the trainer and blocks until it exits. Cancelling ctx kills the
// process. stdout and stderr are both scanned line by line.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	log := logging.ForService("training")
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Dir = r.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, r.processError(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, r.processError(err)
	}
	if err := cmd.Start(); err != nil {
		return Result{}, r.processError(err)
	}
	log.Info("trainer started", "command", r.Command, "args", strings.Join(r.Args, " "))

	var (
		mu  sync.Mutex
		res Result
		wg  sync.WaitGroup
	)
	handle := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if r.OnLine != nil {
			r.OnLine(line)
		}
		if m := savedToRe.FindStringSubmatch(line); m != nil {
			res.SaveDir = strings.Trim(m[1], "'\"")
		}
		if p, ok := ParseProgress(line); ok && r.OnProgress != nil {
			r.OnProgress(p)
		}
	}
	scan := func(rd io.Reader) {
		defer wg.Done()
		sc := bufio.NewScanner(rd)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			handle(sc.Text())
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return res, errors.New(ctx.Err()).
				Component("training").
				Category(errors.CategoryCancelled).
				Build()
		}
		return res, r.processError(err)
	}

	if res.SaveDir != "" {
		res.BestWeights, _ = BestWeights(res.SaveDir)
	}
	log.Info("trainer finished", "save_dir", res.SaveDir, "best", res.BestWeights)
	return res, nil
}

func (r *Runner) processError(err error) error {
	return errors.New(err).
		Component("training").
		Category(errors.CategoryProcess).
		Context("command", r.Command).
		Build()
}
