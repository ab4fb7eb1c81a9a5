// Package benchmarks provides synthetic events and a harness running them
// through the track finding processor.
package benchmarks

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
	"github.com/sarchlab/tfpsim/loader"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/timing/core"
)

// BenchmarkResult holds the outcome of a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark exercises
	Description string `json:"description"`

	// RunID is the id the processor assigned to the run
	RunID string `json:"run_id"`

	// Stubs is the number of stubs in the event
	Stubs int `json:"stubs"`

	// Stats holds the counters of every stage
	Stats core.Stats `json:"stats"`

	// WallTime is the actual time taken to process the event
	WallTime time.Duration `json:"wall_time_ns"`
}

// Lost returns the number of frames lost to truncation over all stages.
func (r BenchmarkResult) Lost() uint64 {
	s := r.Stats
	return s.GP.Lost() + s.HT.Lost + s.MHT.Lost + s.SF.Lost + s.KFin.LostTracks + s.KFin.LostStubs
}

// Benchmark defines a single synthetic event.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark exercises
	Description string

	// Event builds the event from a generator
	Event func(g *Generator) *loader.Event
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Config is the processor configuration (default: setup.DefaultConfig())
	Config *setup.Config

	// Seed seeds the generator of random events
	Seed uint64

	// Parallelism limits the regions processed at once, 0 for no limit
	Parallelism int

	// Logger receives the processor logs (default: discard)
	Logger logr.Logger

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Config: setup.DefaultConfig(),
		Seed:   1,
		Logger: logr.Discard(),
		Output: os.Stdout,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	df         *formats.DataFormats
	enc        *layerenc.Encoding
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness. The registry and layer
// encoding are built once and shared by all benchmarks.
func NewHarness(config HarnessConfig) (*Harness, error) {
	if config.Config == nil {
		config.Config = setup.DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}

	s, err := setup.New(config.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to build setup: %w", err)
	}
	df := formats.New(s)
	return &Harness{
		config:     config,
		df:         df,
		enc:        layerenc.New(df, layerenc.WithLogger(config.Logger)),
		benchmarks: []Benchmark{},
	}, nil
}

// DataFormats returns the registry the harness runs with.
func (h *Harness) DataFormats() *formats.DataFormats { return h.df }

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.Run(ctx, bench)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	return results, nil
}

// Run executes a single benchmark with a fresh generator.
func (h *Harness) Run(ctx context.Context, bench Benchmark) (BenchmarkResult, error) {
	ev := bench.Event(NewGenerator(h.df, h.config.Seed))
	input, err := ev.Streams(h.df)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("benchmark %s: %w", bench.Name, err)
	}

	c := core.New(h.df, h.enc,
		core.WithLogger(h.config.Logger.WithValues("benchmark", bench.Name)),
		core.WithParallelism(h.config.Parallelism))

	start := time.Now()
	res, err := c.Run(ctx, input)
	wallTime := time.Since(start)
	if err != nil {
		return BenchmarkResult{}, fmt.Errorf("benchmark %s: %w", bench.Name, err)
	}

	return BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		RunID:       res.RunID.String(),
		Stubs:       len(ev.Stubs),
		Stats:       res.Stats,
		WallTime:    wallTime,
	}, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	w := h.config.Output
	_, _ = fmt.Fprintln(w, "=== tfpsim Benchmark Results ===")
	_, _ = fmt.Fprintln(w, "")

	for _, r := range results {
		s := r.Stats
		_, _ = fmt.Fprintf(w, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(w, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(w, "  Run: %s\n", r.RunID)
		_, _ = fmt.Fprintf(w, "  Stubs:           %d\n", r.Stubs)
		_, _ = fmt.Fprintln(w, "  --- Stages ---")
		_, _ = fmt.Fprintf(w, "  GP accepted:     %d\n", s.GP.Accepted)
		_, _ = fmt.Fprintf(w, "  HT candidates:   %d\n", s.HT.Candidates)
		_, _ = fmt.Fprintf(w, "  MHT cells:       %d\n", s.MHT.Cells)
		_, _ = fmt.Fprintf(w, "  SF tracks:       %d\n", s.SF.Tracks)
		_, _ = fmt.Fprintf(w, "  LR fitted:       %d\n", s.LR.Fitted)
		_, _ = fmt.Fprintf(w, "  KFin tracks:     %d\n", s.KFin.Tracks)
		_, _ = fmt.Fprintf(w, "  KFin stubs:      %d\n", s.KFin.Stubs)

		if lost := r.Lost(); lost > 0 {
			_, _ = fmt.Fprintln(w, "  --- Truncation ---")
			_, _ = fmt.Fprintf(w, "  Lost frames:     %d\n", lost)
		}

		_, _ = fmt.Fprintf(w, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(w, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	w := h.config.Output
	_, _ = fmt.Fprintln(w,
		"name,stubs,gp_accepted,ht_candidates,mht_cells,sf_tracks,lr_fitted,lr_failed,kfin_tracks,kfin_stubs,lost")

	for _, r := range results {
		s := r.Stats
		_, _ = fmt.Fprintf(w, "%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			r.Name,
			r.Stubs,
			s.GP.Accepted,
			s.HT.Candidates,
			s.MHT.Cells,
			s.SF.Tracks,
			s.LR.Fitted,
			s.LR.Failed,
			s.KFin.Tracks,
			s.KFin.Stubs,
			r.Lost(),
		)
	}
}
