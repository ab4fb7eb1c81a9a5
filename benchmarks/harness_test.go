package benchmarks_test

import (
	"bytes"
	"context"
	"strings"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/benchmarks"
)

var _ = Describe("Harness", func() {
	var (
		out    *bytes.Buffer
		config benchmarks.HarnessConfig
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		config = benchmarks.DefaultConfig()
		config.Output = out
		config.Logger = GinkgoLogr
	})

	It("should run all benchmarks", func() {
		h, err := benchmarks.NewHarness(config)
		Expect(err).NotTo(HaveOccurred())
		h.AddBenchmarks(benchmarks.GetBenchmarks())

		results, err := h.RunAll(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(5))
		for _, r := range results {
			Expect(r.RunID).NotTo(BeEmpty())
			Expect(r.Stats.Input).To(Equal(uint64(r.Stubs)))
			Expect(r.Stats.Regions).To(Equal(uint64(9)))
		}
	})

	It("should keep a single stub out of every stage after the geometric processor", func() {
		h, err := benchmarks.NewHarness(config)
		Expect(err).NotTo(HaveOccurred())

		r, err := h.Run(context.Background(), benchmarks.GetCoreBenchmarks()[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Stubs).To(Equal(1))
		Expect(r.Stats.GP.Accepted).To(Equal(uint64(1)))
		Expect(r.Stats.HT.Candidates).To(BeZero())
		Expect(r.Stats.MHT.Accepted).To(BeZero())
		Expect(r.Stats.SF.Tracks).To(BeZero())
		Expect(r.Stats.LR.Candidates).To(BeZero())
		Expect(r.Stats.KFin.Tracks).To(BeZero())
		Expect(r.Lost()).To(BeZero())
	})

	It("should find a clean track in every stage", func() {
		h, err := benchmarks.NewHarness(config)
		Expect(err).NotTo(HaveOccurred())

		r, err := h.Run(context.Background(), benchmarks.GetCoreBenchmarks()[1])
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Stubs).To(Equal(5))
		Expect(r.Stats.GP.Accepted).To(Equal(uint64(5)))
		Expect(r.Stats.HT.Candidates).To(Equal(uint64(1)))
		Expect(r.Stats.MHT.Cells).To(Equal(uint64(1)))
		Expect(r.Stats.SF.Tracks).To(Equal(uint64(1)))
		Expect(r.Stats.LR.Fitted).To(Equal(uint64(1)))
		Expect(r.Stats.LR.Dropped).To(BeZero())
		Expect(r.Stats.KFin.Tracks).To(Equal(uint64(1)))
		Expect(r.Stats.KFin.Stubs).To(Equal(uint64(5)))
	})

	It("should lose frames when one sector piles up", func() {
		h, err := benchmarks.NewHarness(config)
		Expect(err).NotTo(HaveOccurred())

		r, err := h.Run(context.Background(), benchmarks.GetBenchmarks()[4])
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Stubs).To(Equal(500))
		Expect(r.Lost()).To(BeNumerically(">", 0))
	})

	It("should give equal counters for any parallelism", func() {
		bench := benchmarks.GetBenchmarks()[3]

		serial := config
		serial.Parallelism = 1
		h, err := benchmarks.NewHarness(serial)
		Expect(err).NotTo(HaveOccurred())
		a, err := h.Run(context.Background(), bench)
		Expect(err).NotTo(HaveOccurred())

		h, err = benchmarks.NewHarness(config)
		Expect(err).NotTo(HaveOccurred())
		b, err := h.Run(context.Background(), bench)
		Expect(err).NotTo(HaveOccurred())

		Expect(cmp.Diff(a.Stats, b.Stats)).To(BeEmpty())
		Expect(a.RunID).NotTo(Equal(b.RunID))
	})

	It("should reject an invalid configuration", func() {
		config.Config.NumRegions = 0
		_, err := benchmarks.NewHarness(config)
		Expect(err).To(MatchError(ContainSubstring("failed to build setup")))
	})

	It("should print results", func() {
		h, err := benchmarks.NewHarness(config)
		Expect(err).NotTo(HaveOccurred())
		h.AddBenchmarks(benchmarks.GetCoreBenchmarks())
		results, err := h.RunAll(context.Background())
		Expect(err).NotTo(HaveOccurred())

		h.PrintResults(results)
		Expect(out.String()).To(ContainSubstring("Benchmark: endcap_track"))

		out.Reset()
		h.PrintCSV(results)
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(HavePrefix("name,stubs,"))
		Expect(lines[2]).To(HavePrefix("endcap_track,5,5,1,1,1,1,0,1,5,0"))
	})
})
