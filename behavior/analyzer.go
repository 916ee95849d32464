package behavior

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-proctor/common"
	"github.com/nvr-ai/go-proctor/models"
	"github.com/nvr-ai/go-proctor/tracking"
)

// Config contains the thresholds of every analyzer rule.
type Config struct {
	// PhoneLabel is the detector label of the phone class.
	PhoneLabel string `yaml:"phone_label" json:"phone_label"`
	// PhoneMinConfidence: phones at or below this score are ignored.
	PhoneMinConfidence float32 `yaml:"phone_min_confidence" json:"phone_min_confidence"`
	// PhoneMaxDistance is the center-to-center pixel distance within which a phone
	// is attributed to the nearest subject.
	PhoneMaxDistance float32 `yaml:"phone_max_distance" json:"phone_max_distance"`
	// MovementThreshold is the displacement in pixels a rapid movement must exceed.
	MovementThreshold float32 `yaml:"movement_threshold" json:"movement_threshold"`
	// MovementWindow is the maximum gap between observations for a rapid movement.
	MovementWindow time.Duration `yaml:"movement_window" json:"movement_window"`
	// DriftThreshold is the downward shift in pixels a drift must exceed.
	DriftThreshold float32 `yaml:"drift_threshold" json:"drift_threshold"`
	// DriftMinInterval is the minimum gap between observations for a drift.
	DriftMinInterval time.Duration `yaml:"drift_min_interval" json:"drift_min_interval"`
	// LookingDownConfidence is the fixed confidence of looking_down events.
	LookingDownConfidence float32 `yaml:"looking_down_confidence" json:"looking_down_confidence"`
}

// DefaultConfig returns the stock rule thresholds.
func DefaultConfig() Config {
	return Config{
		PhoneLabel:            models.LabelCellPhone,
		PhoneMinConfidence:    0.5,
		PhoneMaxDistance:      200,
		MovementThreshold:     50,
		MovementWindow:        500 * time.Millisecond,
		DriftThreshold:        30,
		DriftMinInterval:      time.Second,
		LookingDownConfidence: 0.6,
	}
}

// Option customizes an Analyzer.
type Option func(*Analyzer)

// WithIDGenerator replaces the event id source.
func WithIDGenerator(gen func() string) Option {
	return func(a *Analyzer) {
		a.newID = gen
	}
}

// Analyzer applies the behavior rules to one frame at a time. It holds no
// per-frame state; movement history comes in through the deltas.
type Analyzer struct {
	config Config
	newID  func() string
}

// NewAnalyzer creates an analyzer with the given thresholds.
//
// Arguments:
//   - config: Rule thresholds.
//   - opts: Optional overrides.
//
// Returns:
//   - *Analyzer: The analyzer.
//
// @example
// analyzer := NewAnalyzer(DefaultConfig())
// events := analyzer.Analyze(detections, persons, deltas, time.Now())
func NewAnalyzer(config Config, opts ...Option) *Analyzer {
	a := &Analyzer{config: config, newID: uuid.NewString}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the analyzer thresholds.
func (a *Analyzer) Config() Config {
	return a.config
}

// Analyze evaluates every rule against the current frame.
//
// Rules fire independently; one subject may produce several events in the same
// frame. Phone events come first in detection order, then movement events in
// subject order.
//
// Arguments:
//   - detections: Every raw detection of the frame.
//   - persons: The subjects extracted from the same frame.
//   - deltas: Tracker movement keyed by subject id; subjects without history are absent.
//   - now: Timestamp stamped on every emitted event.
//
// Returns:
//   - []Event: Possibly empty. Every PersonID refers to a member of persons.
func (a *Analyzer) Analyze(
	detections []common.Detection,
	persons []tracking.Person,
	deltas map[string]tracking.Delta,
	now time.Time,
) []Event {
	var events []Event
	if len(persons) == 0 {
		return events
	}

	for _, d := range detections {
		if d.Label != a.config.PhoneLabel || d.Confidence <= a.config.PhoneMinConfidence {
			continue
		}
		if p, ok := a.nearest(d.Box.Center(), persons); ok {
			events = append(events, a.event(p, PhoneDetected, d.Confidence, now))
		}
	}

	for _, p := range persons {
		delta, ok := deltas[p.ID]
		if !ok {
			continue
		}

		if delta.Elapsed < a.config.MovementWindow && delta.Distance > a.config.MovementThreshold {
			events = append(events, a.event(p, HeadMovement, a.movementConfidence(delta.Distance), now))
		}

		if delta.VerticalShift() > a.config.DriftThreshold && delta.Elapsed > a.config.DriftMinInterval {
			events = append(events, a.event(p, LookingDown, a.config.LookingDownConfidence, now))
		}
	}

	return events
}

// nearest finds the subject whose center is closest to point, within the phone
// distance limit. Ties keep the earliest subject.
func (a *Analyzer) nearest(point common.Point, persons []tracking.Person) (tracking.Person, bool) {
	var (
		best     tracking.Person
		bestDist float32
		found    bool
	)
	for _, p := range persons {
		d := point.Distance(p.Center())
		if math32.IsNaN(d) || math32.IsInf(d, 0) {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = p, d, true
		}
	}
	if !found || bestDist >= a.config.PhoneMaxDistance {
		return tracking.Person{}, false
	}
	return best, true
}

func (a *Analyzer) movementConfidence(distance float32) float32 {
	if a.config.MovementThreshold <= 0 {
		return 1
	}
	return math32.Min(distance/a.config.MovementThreshold, 1)
}

func (a *Analyzer) event(p tracking.Person, t Type, confidence float32, now time.Time) Event {
	return Event{
		ID:          a.newID(),
		PersonID:    p.ID,
		Type:        t,
		Confidence:  confidence,
		Timestamp:   now,
		Description: t.Description(),
		StudentID:   p.StudentID,
		StudentName: p.StudentName,
	}
}
