package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/go-proctor/alerts"
	"github.com/nvr-ai/go-proctor/behavior"
	"github.com/nvr-ai/go-proctor/common"
	"github.com/nvr-ai/go-proctor/controller"
	"github.com/nvr-ai/go-proctor/images/camera"
	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/nvr-ai/go-proctor/internal/timeutil"
	"github.com/nvr-ai/go-proctor/models"
	"github.com/nvr-ai/go-proctor/tracking"
	"github.com/pkg/errors"
)

// errSimulated is returned by the classroom detector on scheduled failures.
var errSimulated = errors.New("simulated detector failure")

// classroom generates the detections a model would return for a seated room.
type classroom struct {
	scenario Scenario
	seats    []common.Point
	rng      *rand.Rand
	calls    int
}

func newClassroom(s Scenario, res camera.Resolution) *classroom {
	c := &classroom{scenario: s, rng: rand.New(rand.NewSource(s.Seed))}
	if s.Students == 0 {
		return c
	}

	cols := 1
	for cols*cols < s.Students {
		cols++
	}
	rows := (s.Students + cols - 1) / cols
	dx := float32(res.Width) / float32(cols)
	dy := float32(res.Height) / float32(rows)
	for i := 0; i < s.Students; i++ {
		c.seats = append(c.seats, common.Point{
			X: dx*float32(i%cols) + dx/2,
			Y: dy*float32(i/cols) + dy/2,
		})
	}
	return c
}

func (c *classroom) Detect(_ context.Context, frame controller.Frame) ([]common.Detection, error) {
	c.calls++
	if c.scenario.FailEvery > 0 && c.calls%c.scenario.FailEvery == 0 {
		return nil, errSimulated
	}

	jump := c.scenario.MoveEvery > 0 && frame.ID > 0 && frame.ID%c.scenario.MoveEvery == 0
	dets := make([]common.Detection, 0, len(c.seats)+c.scenario.Phones)
	for i, seat := range c.seats {
		x := seat.X + (c.rng.Float32()*2-1)*c.scenario.Jitter
		y := seat.Y + (c.rng.Float32()*2-1)*c.scenario.Jitter
		if jump && i < c.scenario.Movers {
			y += 60
		}
		dets = append(dets, common.Detection{
			Box:        common.BoundingBox{X: x - 50, Y: y - 100, Width: 100, Height: 200},
			Label:      models.LabelPerson,
			Confidence: 0.9,
		})
		if i < c.scenario.Phones {
			dets = append(dets, common.Detection{
				Box:        common.BoundingBox{X: x + 20, Y: y - 10, Width: 20, Height: 40},
				Label:      models.LabelCellPhone,
				Confidence: 0.8,
			})
		}
	}
	return dets, nil
}

// Suite manages and executes benchmark scenarios.
type Suite struct {
	outputDir string

	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuite creates a suite that writes its results under outputDir.
func NewSuite(outputDir string) *Suite {
	return &Suite{outputDir: outputDir}
}

// AddScenario queues a scenario for RunAllScenarios.
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarioSet queues every scenario of a set.
func (bs *Suite) AddScenarioSet(set *ScenarioSet) {
	for _, s := range set.Scenarios {
		bs.AddScenario(s)
	}
}

// RunScenario replays one synthetic classroom through a fresh pipeline. Time
// inside the pipeline is simulated; only the measured durations are wall time.
//
// Arguments:
//   - ctx: Checked between frames.
//   - scenario: The room to simulate.
//
// Returns:
//   - *PerformanceMetrics: Throughput, step latency, memory and output counts.
//   - error: A validation error or ctx's error.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	res, _ := camera.Lookup(scenario.Resolution)

	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	state := controller.NewState(alerts.DefaultConfig())
	assigner, err := tracking.NewAssigner(tracking.IdentityProximity, state.Tracker, 120)
	if err != nil {
		return nil, err
	}
	pipeline := controller.NewPipeline(
		newClassroom(scenario, res),
		tracking.NewExtractor(models.LabelPerson, assigner),
		behavior.NewAnalyzer(behavior.DefaultConfig()),
		state,
		controller.WithClock(clock),
	)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	frameID := 0
	step := func() (controller.StepResult, time.Duration, error) {
		clock.Advance(scenario.FrameInterval)
		frame := controller.Frame{ID: frameID, Image: img, Timestamp: clock.Now()}
		frameID++
		start := time.Now()
		result, err := pipeline.Step(ctx, frame)
		return result, time.Since(start), err
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		_, _, _ = step()
	}

	metrics := &PerformanceMetrics{Scenario: scenario, Timestamp: time.Now()}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	failures := 0
	var total time.Duration
	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, took, err := step()
		total += took
		if took > metrics.StepMax {
			metrics.StepMax = took
		}
		if err != nil {
			failures++
			continue
		}
		metrics.DetectionCount += len(result.Persons)
		metrics.EventCount += len(result.Emitted)
	}

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.TotalDuration = total
	metrics.StepAvg = total / time.Duration(scenario.Iterations)
	if total > 0 {
		metrics.FramesPerSecond = float64(scenario.Iterations) / total.Seconds()
	}
	metrics.AlertCount = state.Alerts.Len()
	metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
	}
	return metrics, nil
}

// RunAllScenarios runs every queued scenario in order. A failing scenario is
// logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := append([]Scenario(nil), bs.scenarios...)
	bs.mu.RUnlock()

	for _, s := range scenarios {
		metrics, err := bs.RunScenario(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("scenario failed", "scenario", s.Name, "error", err)
			continue
		}
		log.Info("scenario finished",
			"scenario", s.Name,
			"fps", fmt.Sprintf("%.0f", metrics.FramesPerSecond),
			"step_avg", metrics.StepAvg,
			"alerts", metrics.AlertCount)

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()
	}
	return nil
}

// Results returns a copy of every completed run.
func (bs *Suite) Results() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}

// SaveResults writes the detailed JSON and a CSV summary into the output directory.
//
// Returns:
//   - string: The JSON results path.
//   - error: An error if a file cannot be written.
func (bs *Suite) SaveResults() (string, error) {
	results := bs.Results()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", errors.Wrap(err, "create output directory")
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal results")
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write results file")
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", errors.Wrap(err, "save summary CSV")
	}
	return resultsFile, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	rows := [][]string{{"Scenario", "Resolution", "Students", "FPS", "Step_Avg_us", "Step_Max_us", "Detections", "Events", "Alerts", "Error_Rate"}}
	for _, r := range results {
		rows = append(rows, []string{
			r.Scenario.Name,
			r.Scenario.Resolution,
			strconv.Itoa(r.Scenario.Students),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatInt(r.StepAvg.Microseconds(), 10),
			strconv.FormatInt(r.StepMax.Microseconds(), 10),
			strconv.Itoa(r.DetectionCount),
			strconv.Itoa(r.EventCount),
			strconv.Itoa(r.AlertCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}
