// Package main provides a profiling wrapper for tfpsim to identify performance bottlenecks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/tfpsim/benchmarks"
	"github.com/sarchlab/tfpsim/loader"
)

var (
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	tracks      = flag.Int("tracks", 200, "random tracks per event")
	events      = flag.Int("events", 100, "number of events to process")
	parallelism = flag.Int("parallelism", 0, "regions processed at once (0 = no limit)")
)

func main() {
	flag.Parse()

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	config := benchmarks.DefaultConfig()
	config.Parallelism = *parallelism
	harness, err := benchmarks.NewHarness(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var stubs, processed int
	for i := 0; i < *events; i++ {
		name := fmt.Sprintf("profile_%d", i)
		gen := benchmarks.NewGenerator(harness.DataFormats(), uint64(i+1))
		bench := benchmarks.Benchmark{
			Name: name,
			Event: func(*benchmarks.Generator) *loader.Event {
				return gen.RandomEvent(name, *tracks)
			},
		}
		result, err := harness.Run(ctx, bench)
		if err != nil {
			fmt.Printf("\nStopped after %d events: %v\n", processed, err)
			break
		}
		stubs += result.Stubs
		processed++
	}
	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Events processed: %d\n", processed)
	fmt.Printf("Stubs processed: %d\n", stubs)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if stubs > 0 {
		fmt.Printf("Stubs/second: %.0f\n", float64(stubs)/elapsed.Seconds())
	}
}
