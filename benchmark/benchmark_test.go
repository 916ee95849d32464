package benchmark

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-proctor/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Discard()
	os.Exit(m.Run())
}

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithStudents(12).
		WithPhones(2).
		WithMovers(3, 4).
		WithJitter(0).
		WithResolution("1080p").
		WithIterations(50).
		WithWarmupRuns(5).
		WithFailEvery(10).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, 12, scenario.Students)
	assert.Equal(t, 2, scenario.Phones)
	assert.Equal(t, 3, scenario.Movers)
	assert.Equal(t, 4, scenario.MoveEvery)
	assert.Zero(t, scenario.Jitter)
	assert.Equal(t, "1080p", scenario.Resolution)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)
	assert.Equal(t, 10, scenario.FailEvery)
	assert.Equal(t, 150*time.Millisecond, scenario.FrameInterval)
	assert.NoError(t, scenario.Validate())
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name     string
		scenario Scenario
	}{
		{"no name", NewScenarioBuilder("").Build()},
		{"negative students", NewScenarioBuilder("x").WithStudents(-1).Build()},
		{"more phones than students", NewScenarioBuilder("x").WithStudents(1).WithPhones(2).Build()},
		{"movers without cadence", NewScenarioBuilder("x").WithMovers(1, 0).Build()},
		{"no iterations", NewScenarioBuilder("x").WithIterations(0).Build()},
		{"unknown resolution", NewScenarioBuilder("x").WithResolution("16k").Build()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.scenario.Validate())
		})
	}
}

func TestPredefinedScenariosAreValid(t *testing.T) {
	for _, set := range []*ScenarioSet{QuickScenarios(), ClassroomScenarios()} {
		require.NotEmpty(t, set.Scenarios, set.Name)
		for _, s := range set.Scenarios {
			assert.NoError(t, s.Validate(), s.Name)
		}
	}
	assert.Len(t, ClassroomScenarios().Scenarios, 12)
}

func TestRunScenarioCountsDetectionsAndAlerts(t *testing.T) {
	suite := NewSuite(t.TempDir())
	scenario := NewScenarioBuilder("phones").
		WithStudents(4).
		WithPhones(2).
		WithIterations(40).
		WithWarmupRuns(10).
		Build()

	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, 4*40, metrics.DetectionCount)
	assert.Equal(t, 2*40, metrics.EventCount, "two phone events per frame before dedup")
	// 50 frames span 7.5s, so each phone alerts at the start and again after 5s.
	assert.Equal(t, 4, metrics.AlertCount)
	assert.Zero(t, metrics.ErrorRate)
	assert.Positive(t, metrics.FramesPerSecond)
	assert.GreaterOrEqual(t, metrics.StepMax, metrics.StepAvg)
}

func TestRunScenarioMoversRaiseEvents(t *testing.T) {
	suite := NewSuite(t.TempDir())
	scenario := NewScenarioBuilder("movers").
		WithStudents(3).
		WithMovers(1, 5).
		WithJitter(0).
		WithIterations(20).
		WithWarmupRuns(0).
		Build()

	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, 3*20, metrics.DetectionCount, "identities survive the jump")
	assert.Positive(t, metrics.EventCount)
	assert.Positive(t, metrics.AlertCount)
}

func TestRunScenarioFailures(t *testing.T) {
	suite := NewSuite(t.TempDir())
	scenario := NewScenarioBuilder("flaky").
		WithStudents(2).
		WithIterations(40).
		WithWarmupRuns(0).
		WithFailEvery(4).
		Build()

	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, metrics.ErrorRate, 1e-9)
	assert.Equal(t, 2*30, metrics.DetectionCount)
}

func TestRunScenarioCanceled(t *testing.T) {
	suite := NewSuite(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.RunScenario(ctx, NewScenarioBuilder("canceled").WithWarmupRuns(0).Build())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllScenariosAndSave(t *testing.T) {
	dir := t.TempDir()
	suite := NewSuite(dir)
	suite.AddScenarioSet(QuickScenarios())
	suite.AddScenario(NewScenarioBuilder("").Build())

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	results := suite.Results()
	require.Len(t, results, 3, "the invalid scenario is skipped")

	resultsFile, err := suite.SaveResults()
	require.NoError(t, err)
	assert.FileExists(t, resultsFile)

	matches, err := filepath.Glob(filepath.Join(dir, "benchmark_summary_*.csv"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Scenario", rows[0][0])
	assert.Equal(t, "empty", rows[1][0])
}

func TestLoadScenarioSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: exam-hall
scenarios:
  - name: hall
    students: 40
    phones: 4
    resolution: 1080p
    frame_interval: 100ms
`), 0o600))

	set, err := LoadScenarioSet(path)
	require.NoError(t, err)
	assert.Equal(t, "exam-hall", set.Name)
	require.Len(t, set.Scenarios, 1)

	s := set.Scenarios[0]
	assert.Equal(t, 40, s.Students)
	assert.Equal(t, 100*time.Millisecond, s.FrameInterval)
	assert.Equal(t, 100, s.Iterations, "omitted fields keep builder defaults")
}

func BenchmarkPipelineStep(b *testing.B) {
	suite := NewSuite(b.TempDir())
	for _, students := range []int{1, 10, 40} {
		scenario := NewScenarioBuilder("bench").
			WithStudents(students).
			WithPhones(students / 10).
			WithWarmupRuns(0).
			Build()
		b.Run(fmt.Sprintf("students_%d", students), func(b *testing.B) {
			scenario.Iterations = b.N
			if _, err := suite.RunScenario(context.Background(), scenario); err != nil {
				b.Fatal(err)
			}
		})
	}
}
