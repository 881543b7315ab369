package autolabel

import (
	"context"
	"sync"

	"labeltool/internal/errors"
	"labeltool/internal/logging"
)

// Result is delivered once per processed image.
type Result struct {
	Image      string
	Prediction Prediction
	Err        error
}

// Progress reports how many images of a batch are done.
type Progress struct {
	Done  int
	Total int
}

// Worker runs a Predictor over a batch of images in the background.
//
// Results never touch the label store directly; the sink is expected to hand
// them to the goroutine that owns the store.
type Worker struct {
	Predictor  Predictor
	OnProgress func(Progress)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches Run in a goroutine. It fails if a batch is already running.
func (w *Worker) Start(ctx context.Context, images []string, sink func(Result)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		select {
		case <-w.done:
		default:
			return errors.Newf("auto-label batch already running").
				Component("autolabel").
				Category(errors.CategoryState).
				Build()
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done
	go func() {
		defer close(done)
		defer cancel()
		_ = w.Run(ctx, images, sink)
	}()
	return nil
}

// Abort asks a running batch to stop after the current image and waits for it.
func (w *Worker) Abort() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the running batch, if any, has finished.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Run processes images sequentially on the calling goroutine. Cancellation is
// checked between images only: the image in flight is predicted with ctx's
// values but not its cancellation, so it completes and reaches the sink. A
// failing image is reported through the sink and does not stop the batch. It
// returns the context error when cancelled.
func (w *Worker) Run(ctx context.Context, images []string, sink func(Result)) error {
	log := logging.ForService("autolabel")
	total := len(images)
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			log.Info("auto-label cancelled", "done", i, "total", total)
			return err
		}

		pred, err := w.Predictor.Predict(context.WithoutCancel(ctx), img)
		if err != nil {
			log.Warn("auto-label failed", "image", img, "error", err)
			err = errors.New(err).
				Component("autolabel").
				Category(errors.CategoryProcess).
				Context("image", img).
				Build()
		}
		sink(Result{Image: img, Prediction: pred, Err: err})

		if w.OnProgress != nil {
			w.OnProgress(Progress{Done: i + 1, Total: total})
		}
	}
	log.Info("auto-label finished", "images", total)
	return nil
}
