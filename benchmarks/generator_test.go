package benchmarks_test

import (
	"math"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/benchmarks"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

var _ = Describe("Generator", func() {
	var (
		s  *setup.Setup
		df *formats.DataFormats
		g  *benchmarks.Generator
	)

	BeforeEach(func() {
		s = setup.MustNew(setup.DefaultConfig())
		df = formats.New(s)
		g = benchmarks.NewGenerator(df, 7)
	})

	It("should place a cell track on the bin centres", func() {
		t := benchmarks.EndcapTrack(g)
		Expect(t.Z0).To(BeNumerically("~", df.Base(formats.Z0, formats.SF)/2, 1e-12))
		Expect(t.Cot - s.SectorCot(13)).To(BeNumerically("~", df.Base(formats.Cot, formats.SF)/2, 1e-12))
		Expect(t.QoverPt).To(BeNumerically("~", 2.5*df.Base(formats.QoverPt, formats.MHT), 1e-15))
	})

	It("should leave one stub per crossed layer", func() {
		t := benchmarks.EndcapTrack(g)
		stubs := g.Stubs(t)

		var layerIDs []int
		for _, st := range stubs {
			m, ok := s.Module(st.Module)
			Expect(ok).To(BeTrue())
			layerIDs = append(layerIDs, setup.LayerID(st.Layer, m.Barrel))

			Expect(st.Region).To(Equal(0))
			Expect(st.SectorsPhi).To(Equal([]int{1}))
			Expect([]int{st.EtaMin, st.EtaMax}).To(Equal([]int{13, 13}))
			Expect([]int{st.QMin, st.QMax}).To(Equal([]int{1, 1}))

			r := st.R + s.ChosenRofPhi()
			Expect(st.Z).To(BeNumerically("~", t.Z0+t.Cot*r, 1e-9))
			Expect(st.Phi).To(BeNumerically("~", t.PhiT-t.QoverPt*st.R, 1e-12))
		}
		Expect(layerIDs).To(Equal([]int{1, 11, 12, 13, 14}))
	})

	It("should mark modules by their readout", func() {
		stubs := g.Stubs(benchmarks.EndcapTrack(g))
		var ps []bool
		for _, st := range stubs {
			m, _ := s.Module(st.Module)
			ps = append(ps, m.PS)
		}
		Expect(ps).To(Equal([]bool{true, true, false, false, false}))
	})

	It("should produce events the loader accepts", func() {
		ev := g.RandomEvent("random", 50)
		Expect(ev.Stubs).NotTo(BeEmpty())
		streams, err := ev.Streams(df)
		Expect(err).NotTo(HaveOccurred())
		Expect(streams.Count()).To(Equal(len(ev.Stubs)))
	})

	It("should repeat random events for equal seeds", func() {
		a := benchmarks.NewGenerator(df, 3).RandomEvent("a", 20)
		b := benchmarks.NewGenerator(df, 3).RandomEvent("a", 20)
		c := benchmarks.NewGenerator(df, 4).RandomEvent("a", 20)
		Expect(cmp.Diff(a, b)).To(BeEmpty())
		Expect(cmp.Diff(a, c)).NotTo(BeEmpty())
	})

	It("should leave nothing outside the eta acceptance", func() {
		t := benchmarks.EndcapTrack(g)
		t.Cot = math.Sinh(3)
		Expect(g.Stubs(t)).To(BeEmpty())
	})
})
