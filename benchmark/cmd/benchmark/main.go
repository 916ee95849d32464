package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-proctor/benchmark"
	"github.com/nvr-ai/go-proctor/internal/log"
)

func main() {
	var (
		scenarioFile = flag.String("scenarios", "", "Path to a YAML scenario set")
		outputDir    = flag.String("output", "./benchmark_results", "Output directory for results")
		classroom    = flag.Bool("classroom", false, "Run the classroom size sweep")
		timeout      = flag.Duration("timeout", 10*time.Minute, "Benchmark timeout duration")
	)
	flag.Parse()

	log.Init(os.Getenv("LOG_LEVEL"))
	suite := benchmark.NewSuite(*outputDir)

	switch {
	case *scenarioFile != "":
		set, err := benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load scenario file: %v\n", err)
			os.Exit(1)
		}
		suite.AddScenarioSet(set)
		fmt.Printf("Loaded %d scenarios from %s\n", len(set.Scenarios), *scenarioFile)
	case *classroom:
		suite.AddScenarioSet(benchmark.ClassroomScenarios())
	default:
		suite.AddScenarioSet(benchmark.QuickScenarios())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := suite.RunAllScenarios(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark execution failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Benchmark completed in %v\n", time.Since(start))

	resultsFile, err := suite.SaveResults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save results: %v\n", err)
		os.Exit(1)
	}

	results := suite.Results()
	fmt.Printf("\n=== BENCHMARK RESULTS SUMMARY ===\n")
	fmt.Printf("Total scenarios: %d\n", len(results))
	fmt.Printf("Results saved to: %s\n", resultsFile)

	var slowest time.Duration
	var slowestScenario string
	for _, result := range results {
		if result.StepMax > slowest {
			slowest = result.StepMax
			slowestScenario = result.Scenario.Name
		}
		fmt.Printf("  %s: %.0f steps/s, avg %v, %d alerts\n",
			result.Scenario.Name,
			result.FramesPerSecond,
			result.StepAvg,
			result.AlertCount)
	}
	if slowestScenario != "" {
		fmt.Printf("\nSlowest step: %s (%v)\n", slowestScenario, slowest)
	}
}

func init() {
	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", name)
		fmt.Fprintf(os.Stderr, "Measures proctoring pipeline throughput over synthetic classrooms.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -classroom\n", name)
		fmt.Fprintf(os.Stderr, "  %s -scenarios ./scenarios.yaml -output ./results\n", name)
	}
}
