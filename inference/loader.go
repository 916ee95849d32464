// Package inference - loads the detection model and runs it on frames.
package inference

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/pkg/errors"
)

// ErrModelNotLoaded is returned by Detect before a successful Load.
var ErrModelNotLoaded = errors.New("inference: model not loaded")

// ErrLoadInProgress is returned by Load while another Load is running.
var ErrLoadInProgress = errors.New("inference: load already in progress")

// Stage is one step of model loading. Progress is reported once the step succeeds.
type Stage struct {
	Name     string
	Progress int
	Run      func(ctx context.Context) error
}

// Loader runs the loading stages and reports coarse progress. A failed load
// resets progress to 0 and leaves the model unloaded until Load is called again.
type Loader struct {
	stages []Stage

	mu       sync.RWMutex
	progress int
	loaded   bool
	loading  bool
	err      error
}

// NewLoader creates a loader over the given stages, run in order.
func NewLoader(stages ...Stage) *Loader {
	return &Loader{stages: stages}
}

// Load runs every stage. It is a no-op on a loaded model.
//
// Arguments:
//   - ctx: Checked before each stage.
//
// Returns:
//   - error: The first stage failure, wrapped with the stage name.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	if l.loaded {
		l.mu.Unlock()
		return nil
	}
	if l.loading {
		l.mu.Unlock()
		return ErrLoadInProgress
	}
	l.loading = true
	l.progress = 0
	l.err = nil
	l.mu.Unlock()

	err := l.run(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	if err != nil {
		l.progress = 0
		l.err = err
		log.Error("model load failed", "error", err)
		return err
	}
	l.loaded = true
	l.progress = 100
	return nil
}

func (l *Loader) run(ctx context.Context) error {
	for _, stage := range l.stages {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "load stage %s", stage.Name)
		}
		if err := stage.Run(ctx); err != nil {
			return errors.Wrapf(err, "load stage %s", stage.Name)
		}
		l.mu.Lock()
		l.progress = stage.Progress
		l.mu.Unlock()
		log.Info("model load progress", "stage", stage.Name, "progress", stage.Progress)
	}
	return nil
}

// LoadAsync runs Load on its own goroutine. The channel receives its result and
// is then closed.
func (l *Loader) LoadAsync(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		result <- l.Load(ctx)
	}()
	return result
}

// Loaded reports whether the last Load succeeded.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Progress returns the last milestone reached, 0 through 100.
func (l *Loader) Progress() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.progress
}

// Err returns the failure of the last Load, if any.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Unload marks the model unloaded so the next Load runs every stage again.
func (l *Loader) Unload() {
	l.mu.Lock()
	l.loaded = false
	l.progress = 0
	l.mu.Unlock()
}
