package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/pkg/errors"
)

// SchedulerConfig contains the pacing of the scheduler.
type SchedulerConfig struct {
	// Interval is the minimum time between the starts of two pipeline steps.
	Interval time.Duration
	// PruneInterval is the cadence of the background alert prune.
	PruneInterval time.Duration
	// Room labels the sessions the scheduler opens.
	Room string
}

// DefaultSchedulerConfig returns a 150ms interval and a 5s prune cadence.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:      150 * time.Millisecond,
		PruneInterval: 5 * time.Second,
	}
}

// Scheduler pulls frames from a source and runs them through the pipeline no
// more often than once per interval. Steps never overlap: the next one is only
// scheduled once the current one returns, and a step that overran the interval
// is followed immediately rather than caught up.
type Scheduler struct {
	pipeline  *Pipeline
	source    FrameSource
	readiness Readiness
	config    SchedulerConfig

	mu          sync.Mutex
	attempted   bool
	lastAttempt time.Time
	cancel      context.CancelFunc
	done        chan struct{}
	observers   []func(Snapshot)

	// delivering is set while the run loop hands a snapshot to observers.
	delivering atomic.Bool

	steps    atomic.Int64
	failures atomic.Int64
	pruned   atomic.Int64
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReadiness gates every step on the model being loaded.
func WithReadiness(r Readiness) SchedulerOption {
	return func(s *Scheduler) { s.readiness = r }
}

// NewScheduler creates a stopped scheduler. Time comes from the pipeline's clock.
//
// Arguments:
//   - pipeline: The pipeline to drive.
//   - source: Where frames come from.
//   - config: Pacing.
//   - opts: Optional overrides.
//
// Returns:
//   - *Scheduler: The scheduler.
//
// @example
// scheduler := controller.NewScheduler(pipeline, source, controller.DefaultSchedulerConfig())
//
//	if err := scheduler.Start(ctx); err != nil {
//		return err
//	}
//
// defer scheduler.Stop()
func NewScheduler(pipeline *Pipeline, source FrameSource, config SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pipeline: pipeline,
		source:   source,
		config:   config,
	}
	if s.config.PruneInterval <= 0 {
		s.config.PruneInterval = DefaultSchedulerConfig().PruneInterval
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSnapshot registers fn to receive a snapshot after every completed step and
// every consumer change to the alert set. Step and prune snapshots are delivered
// on the run loop goroutine, consumer changes on the consumer's goroutine. fn
// must not block; it may call Stop, which then returns without waiting for the
// loop it was called from.
func (s *Scheduler) OnSnapshot(fn func(Snapshot)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Ready reports whether the detector's model is loaded.
func (s *Scheduler) Ready() bool {
	return s.readiness == nil || s.readiness.Loaded()
}

// Model returns the readiness of the detector.
func (s *Scheduler) Model() ModelStatus {
	if s.readiness == nil {
		return ModelStatus{Loaded: true, Progress: 100}
	}
	return ModelStatus{Loaded: s.readiness.Loaded(), Progress: s.readiness.Progress()}
}

// Poll runs one pipeline step if the interval has elapsed since the previous
// attempt. A failed attempt counts as an attempt, so a failing detector is
// retried once per interval.
//
// Arguments:
//   - ctx: Canceling it prevents the step from starting.
//
// Returns:
//   - bool: True when a step completed and its outputs were published.
//   - error: ErrNotReady, a frame source error, or a detector error.
func (s *Scheduler) Poll(ctx context.Context) (bool, error) {
	ran, err := s.poll(ctx)
	if ran {
		s.notify()
	}
	return ran, err
}

func (s *Scheduler) poll(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := s.pipeline.clock.Now()
	s.mu.Lock()
	if s.attempted && now.Sub(s.lastAttempt) < s.config.Interval {
		s.mu.Unlock()
		return false, nil
	}
	s.attempted = true
	s.lastAttempt = now
	s.mu.Unlock()

	if !s.Ready() {
		return false, ErrNotReady
	}

	frame, err := s.source.Next(ctx)
	if err != nil {
		return false, errors.Wrap(err, "next frame")
	}

	if _, err := s.pipeline.Step(ctx, frame); err != nil {
		s.failures.Add(1)
		return false, err
	}
	s.steps.Add(1)
	return true, nil
}

// Prune removes expired alerts independently of any step.
func (s *Scheduler) Prune() int {
	n := s.prune()
	if n > 0 {
		s.notify()
	}
	return n
}

func (s *Scheduler) prune() int {
	n := s.pipeline.state.Alerts.Prune(s.pipeline.clock.Now())
	s.pruned.Add(int64(n))
	return n
}

// deliver notifies observers from the run loop.
func (s *Scheduler) deliver() {
	s.delivering.Store(true)
	defer s.delivering.Store(false)
	s.notify()
}

// untilDue returns how long to wait before the next step is eligible.
func (s *Scheduler) untilDue() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attempted {
		return 0
	}
	wait := s.config.Interval - s.pipeline.clock.Since(s.lastAttempt)
	if wait < 0 {
		return 0
	}
	return wait
}

// Run drives the pipeline until ctx is canceled. Step errors are logged and the
// loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	clock := s.pipeline.clock

	prune := clock.NewTicker(s.config.PruneInterval)
	defer prune.Stop()

	timer := clock.NewTimer(s.untilDue())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-prune.C():
			if n := s.prune(); n > 0 {
				log.Debug("pruned expired alerts", "removed", n)
				s.deliver()
			}
		case <-timer.C():
			ran, err := s.poll(ctx)
			if err != nil {
				s.logPollError(err)
			}
			if ran {
				s.deliver()
			}
			timer.Reset(s.untilDue())
		}
	}
}

func (s *Scheduler) logPollError(err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrNoFrame):
		log.Debug("step skipped", "reason", err)
	default:
		log.Warn("step failed, frame skipped", "error", err)
	}
}

// Start opens a session and runs the scheduler on its own goroutine.
//
// Returns:
//   - error: ErrAlreadyRunning, or ErrNotReady when the model is not loaded.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	if !s.Ready() {
		return ErrNotReady
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	session := s.pipeline.state.BeginSession(s.config.Room, s.pipeline.clock.Now())
	log.Info("monitoring started", "session", session.ID, "room", session.Room, "interval", s.config.Interval)

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
	return nil
}

// Stop cancels the run loop, waits for an in-flight step to return and closes
// the session. It is a no-op on a stopped scheduler. Called from an observer
// during loop delivery, the step has already returned and the loop exits once
// the observer does, so Stop does not wait.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if !s.delivering.Load() {
		<-done
	}

	if session, ok := s.pipeline.state.EndSession(s.pipeline.clock.Now()); ok {
		log.Info("monitoring stopped",
			"session", session.ID,
			"duration", time.Duration(session.DurationSeconds*float64(time.Second)).Truncate(time.Millisecond),
			"total_alerts", session.TotalAlerts,
			"peak_students", session.PeakStudentCount,
		)
	}
	s.notify()
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Snapshot captures the current outputs.
func (s *Scheduler) Snapshot() Snapshot {
	return s.pipeline.state.Snapshot(s.pipeline.clock.Now(), s.Model())
}

// Session returns the current session summary.
func (s *Scheduler) Session() (Session, bool) {
	return s.pipeline.state.Session(s.pipeline.clock.Now())
}

// Dismiss removes one alert by id.
func (s *Scheduler) Dismiss(id string) bool {
	ok := s.pipeline.state.Alerts.Dismiss(id)
	if ok {
		s.notify()
	}
	return ok
}

// ClearAll empties the alert set.
func (s *Scheduler) ClearAll() {
	s.pipeline.state.Alerts.ClearAll()
	s.notify()
}

func (s *Scheduler) notify() {
	s.mu.Lock()
	observers := make([]func(Snapshot), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()
	if len(observers) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, fn := range observers {
		fn(snap)
	}
}

// CollectMetrics reports pipeline counters to the runtime profiler.
func (s *Scheduler) CollectMetrics() map[string]float64 {
	stats := s.pipeline.state.Stats()
	return map[string]float64{
		"pipeline.fps":           float64(stats.FPS),
		"pipeline.persons":       float64(stats.TotalDetected),
		"pipeline.alerts":        float64(s.pipeline.state.Alerts.Len()),
		"pipeline.tracked":       float64(s.pipeline.state.Tracker.Len()),
		"pipeline.steps":         float64(s.steps.Load()),
		"pipeline.step_failures": float64(s.failures.Load()),
		"pipeline.pruned":        float64(s.pruned.Load()),
	}
}
