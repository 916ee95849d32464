package benchmark

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nvr-ai/go-proctor/images/camera"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Scenario describes a synthetic classroom replayed through the pipeline.
type Scenario struct {
	Name string `json:"name" yaml:"name"`
	// Students is the number of seated subjects.
	Students int `json:"students" yaml:"students"`
	// Phones places a phone next to the first Phones students.
	Phones int `json:"phones" yaml:"phones"`
	// Movers is how many students jump by 60px every MoveEvery frames.
	Movers    int `json:"movers" yaml:"movers"`
	MoveEvery int `json:"move_every" yaml:"move_every"`
	// Jitter is the per-frame center noise in pixels.
	Jitter float32 `json:"jitter" yaml:"jitter"`
	// Resolution is an alias such as "720p".
	Resolution string `json:"resolution" yaml:"resolution"`
	// FrameInterval is the simulated time between frames.
	FrameInterval time.Duration `json:"frame_interval" yaml:"frame_interval"`
	Iterations    int           `json:"iterations" yaml:"iterations"`
	WarmupRuns    int           `json:"warmup_runs" yaml:"warmup_runs"`
	// FailEvery makes every n-th detect call fail. Zero never fails.
	FailEvery int   `json:"fail_every" yaml:"fail_every"`
	Seed      int64 `json:"seed" yaml:"seed"`
}

// ScenarioBuilder helps build scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder with a one-student 720p scenario.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:          name,
			Students:      1,
			Resolution:    "720p",
			FrameInterval: 150 * time.Millisecond,
			Iterations:    100,
			WarmupRuns:    10,
			Jitter:        2,
			Seed:          1,
		},
	}
}

// WithStudents sets the number of subjects.
func (sb *ScenarioBuilder) WithStudents(n int) *ScenarioBuilder {
	sb.scenario.Students = n
	return sb
}

// WithPhones sets how many students hold a phone.
func (sb *ScenarioBuilder) WithPhones(n int) *ScenarioBuilder {
	sb.scenario.Phones = n
	return sb
}

// WithMovers makes n students jump every `every` frames.
func (sb *ScenarioBuilder) WithMovers(n, every int) *ScenarioBuilder {
	sb.scenario.Movers = n
	sb.scenario.MoveEvery = every
	return sb
}

// WithJitter sets the per-frame center noise.
func (sb *ScenarioBuilder) WithJitter(px float32) *ScenarioBuilder {
	sb.scenario.Jitter = px
	return sb
}

// WithResolution sets the frame size by alias.
func (sb *ScenarioBuilder) WithResolution(alias string) *ScenarioBuilder {
	sb.scenario.Resolution = alias
	return sb
}

// WithIterations sets the number of measured frames.
func (sb *ScenarioBuilder) WithIterations(n int) *ScenarioBuilder {
	sb.scenario.Iterations = n
	return sb
}

// WithWarmupRuns sets the number of unmeasured frames.
func (sb *ScenarioBuilder) WithWarmupRuns(n int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = n
	return sb
}

// WithFailEvery makes every n-th detect call fail.
func (sb *ScenarioBuilder) WithFailEvery(n int) *ScenarioBuilder {
	sb.scenario.FailEvery = n
	return sb
}

// Build returns the configured scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// Validate checks that the scenario can be run.
func (s Scenario) Validate() error {
	switch {
	case s.Name == "":
		return errors.New("scenario needs a name")
	case s.Students < 0 || s.Phones < 0 || s.Movers < 0:
		return errors.Errorf("scenario %s: counts must not be negative", s.Name)
	case s.Phones > s.Students || s.Movers > s.Students:
		return errors.Errorf("scenario %s: phones and movers cannot exceed students", s.Name)
	case s.Movers > 0 && s.MoveEvery <= 0:
		return errors.Errorf("scenario %s: movers need move_every", s.Name)
	case s.Iterations <= 0:
		return errors.Errorf("scenario %s: iterations must be positive", s.Name)
	case s.FrameInterval <= 0:
		return errors.Errorf("scenario %s: frame_interval must be positive", s.Name)
	}
	if _, ok := camera.Lookup(s.Resolution); !ok {
		return errors.Errorf("scenario %s: unknown resolution %q", s.Name, s.Resolution)
	}
	return nil
}

// ScenarioSet is a named collection of scenarios.
type ScenarioSet struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios" yaml:"scenarios"`
}

// QuickScenarios covers an empty room, a quiet room and a busy one.
func QuickScenarios() *ScenarioSet {
	return &ScenarioSet{
		Name:        "Quick",
		Description: "Empty, quiet and busy rooms at 720p",
		Scenarios: []Scenario{
			NewScenarioBuilder("empty").WithStudents(0).Build(),
			NewScenarioBuilder("quiet_10").WithStudents(10).Build(),
			NewScenarioBuilder("busy_30").WithStudents(30).WithPhones(3).WithMovers(5, 7).Build(),
		},
	}
}

// ClassroomScenarios scales the room size across resolutions.
func ClassroomScenarios() *ScenarioSet {
	set := &ScenarioSet{
		Name:        "Classroom",
		Description: "Room sizes from 5 to 60 students across capture resolutions",
	}
	for _, res := range []string{"480p", "720p", "1080p"} {
		for _, students := range []int{5, 15, 30, 60} {
			set.Scenarios = append(set.Scenarios,
				NewScenarioBuilder(res+"_"+strconv.Itoa(students)).
					WithResolution(res).
					WithStudents(students).
					WithPhones(students/10).
					WithMovers(students/5, 5).
					WithIterations(300).
					Build())
		}
	}
	return set
}

// LoadScenarioSet reads a YAML scenario set. Omitted fields take the builder defaults.
func LoadScenarioSet(path string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}

	var raw struct {
		Name        string      `yaml:"name"`
		Description string      `yaml:"description"`
		Scenarios   []yaml.Node `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse scenario file")
	}

	set := &ScenarioSet{Name: raw.Name, Description: raw.Description}
	for i := range raw.Scenarios {
		s := NewScenarioBuilder("").Build()
		if err := raw.Scenarios[i].Decode(&s); err != nil {
			return nil, errors.Wrapf(err, "scenario %d", i)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		set.Scenarios = append(set.Scenarios, s)
	}
	return set, nil
}
