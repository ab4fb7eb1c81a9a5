// Command benchmark runs the synthetic events of the benchmark harness
// through the track finding processor.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv          Output results in CSV format (default: human-readable)
//	-core         Run only the minimal validation events
//	-config       Path to a json or yaml processor config
//	-seed         Seed of the random events
//	-parallelism  Regions processed at once (0 = no limit)
//	-no-trunc     Disable truncation in every stage
//
// Example:
//
//	# Output CSV for comparing two configs
//	go run ./cmd/benchmark -csv -config wide.yaml > wide.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/tfpsim/benchmarks"
	"github.com/sarchlab/tfpsim/setup"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	coreOnly := flag.Bool("core", false, "Run only the minimal validation events")
	configPath := flag.String("config", "", "Path to a json or yaml processor config")
	seed := flag.Uint64("seed", 1, "Seed of the random events")
	parallelism := flag.Int("parallelism", 0, "Regions processed at once (0 = no limit)")
	noTrunc := flag.Bool("no-trunc", false, "Disable truncation in every stage")
	flag.Parse()

	config := benchmarks.DefaultConfig()
	if *configPath != "" {
		cfg, err := setup.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Config = cfg
	}
	config.Config.EnableTruncation = !*noTrunc
	config.Seed = *seed
	config.Parallelism = *parallelism
	config.Output = os.Stdout

	harness, err := benchmarks.NewHarness(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetBenchmarks())
	}

	if !*csvOutput {
		fmt.Println("tfpsim Benchmark Harness")
		fmt.Println("========================")
		fmt.Printf("Regions:    %d\n", config.Config.NumRegions)
		fmt.Printf("Truncation: %v\n", config.Config.EnableTruncation)
		fmt.Printf("Seed:       %d\n", config.Seed)
		fmt.Println("")
	}

	results, err := harness.RunAll(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *csvOutput {
		harness.PrintCSV(results)
	} else {
		harness.PrintResults(results)
	}
}
