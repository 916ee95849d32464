package controller

import (
	"context"
	"time"

	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/nvr-ai/go-proctor/internal/timeutil"
	"github.com/nvr-ai/go-proctor/tracking"
	"github.com/pkg/errors"
)

// fpsWindow is the trailing window the throughput counter covers.
const fpsWindow = time.Second

// StepResult is the outcome of one completed pipeline step.
type StepResult struct {
	Persons  []tracking.Person
	Emitted  []behavior.Event
	Accepted []behavior.Event
	Evicted  []string
	FPS      int
}

// Pipeline runs one frame through detection, extraction, tracking, analysis and
// alert merging. Step must not be called concurrently with itself.
type Pipeline struct {
	detector   Detector
	extractor  *tracking.Extractor
	analyzer   *behavior.Analyzer
	state      *State
	clock      timeutil.Clock
	staleAfter time.Duration
	timer      OperationTimer
	fps        *RateCounter
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock replaces the wall clock.
func WithClock(clock timeutil.Clock) PipelineOption {
	return func(p *Pipeline) { p.clock = clock }
}

// WithStaleAfter sets how long a tracker record survives without being refreshed.
// Zero disables eviction.
func WithStaleAfter(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.staleAfter = d }
}

// WithOperationTimer times every stage through t.
func WithOperationTimer(t OperationTimer) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.timer = t
		}
	}
}

// NewPipeline wires the stages around a shared state.
//
// Arguments:
//   - detector: The frame detector adapter.
//   - extractor: Subject extraction and identity assignment.
//   - analyzer: The behavior rules.
//   - state: The tracker, alert set and published outputs.
//   - opts: Optional overrides.
//
// Returns:
//   - *Pipeline: The pipeline.
//
// @example
// state := controller.NewState(alerts.DefaultConfig())
// extractor := tracking.NewExtractor(models.LabelPerson, tracking.NewProximityAssigner(state.Tracker, 120))
// pipeline := controller.NewPipeline(detector, extractor, behavior.NewAnalyzer(behavior.DefaultConfig()), state)
func NewPipeline(
	detector Detector,
	extractor *tracking.Extractor,
	analyzer *behavior.Analyzer,
	state *State,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		detector:   detector,
		extractor:  extractor,
		analyzer:   analyzer,
		state:      state,
		clock:      timeutil.RealClock{},
		staleAfter: 3 * time.Second,
		timer:      noopTimer{},
		fps:        NewRateCounter(fpsWindow),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the pipeline's state.
func (p *Pipeline) State() *State {
	return p.state
}

// Step processes one frame.
//
// A detector failure is returned wrapped and leaves every piece of state as it
// was; the caller decides whether to log and continue.
//
// Arguments:
//   - ctx: Passed to the detector.
//   - frame: The frame to analyze.
//
// Returns:
//   - StepResult: What the step produced.
//   - error: The wrapped detector error, if any.
func (p *Pipeline) Step(ctx context.Context, frame Frame) (StepResult, error) {
	done := p.timer.StartOperation("detect")
	detections, err := p.detector.Detect(ctx, frame)
	done()
	if err != nil {
		return StepResult{}, errors.Wrapf(err, "detect frame %d", frame.ID)
	}

	now := p.clock.Now()
	done = p.timer.StartOperation("analyze")
	defer done()

	var result StepResult
	if p.staleAfter > 0 {
		result.Evicted = p.state.Tracker.Evict(now, p.staleAfter)
	}

	result.Persons = p.extractor.Extract(detections)

	// Every subject's record is refreshed before the analyzer runs.
	deltas := make(map[string]tracking.Delta, len(result.Persons))
	for _, person := range result.Persons {
		if d, ok := p.state.Tracker.Update(person, now); ok {
			deltas[person.ID] = d
		}
	}

	result.Emitted = p.analyzer.Analyze(detections, result.Persons, deltas, now)
	result.Accepted = p.state.Alerts.Merge(result.Emitted, now)
	result.FPS = p.fps.Mark(now)

	p.state.commit(result.Persons, len(result.Emitted), len(result.Accepted), result.FPS, now)

	if len(result.Accepted) > 0 {
		log.Debug("alerts accepted",
			"frame", frame.ID,
			"accepted", len(result.Accepted),
			"emitted", len(result.Emitted),
		)
	}
	return result, nil
}
