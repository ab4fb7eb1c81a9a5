package gp_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
	"github.com/sarchlab/tfpsim/timing/gp"
)

const (
	eta    = 8
	sector = eta * 2 // phi sector 0
)

type fixture struct {
	s     *setup.Setup
	df    *formats.DataFormats
	input stream.Streams
	next  int
}

func newFixture(config *setup.Config) *fixture {
	s := setup.MustNew(config)
	df := formats.New(s)
	return &fixture{s: s, df: df, input: stream.NewStreams(df.NumChannel(formats.PP))}
}

// push appends a stub of the test sector, or a gap when valid is false, to
// an input link.
func (f *fixture) push(link int, valid bool) *stream.Ref {
	if !valid {
		f.input[link] = append(f.input[link], stream.Gap())
		return nil
	}
	r := 10.0
	pp := formats.StubPP{
		R:          r,
		Z:          (r + f.s.ChosenRofPhi()) * f.s.SectorCot(eta),
		Layer:      1,
		SectorsPhi: bitvec.New(0b01, 2),
		EtaMin:     eta,
		EtaMax:     eta,
		QMin:       -8,
		QMax:       7,
	}
	ref := &stream.Ref{ID: f.next}
	f.next++
	f.input[link] = append(f.input[link], stream.Frame{Ref: ref, Bits: f.df.EncodePP(pp)})
	return ref
}

func refs(s stream.Stream) []*stream.Ref {
	var out []*stream.Ref
	for _, f := range s {
		out = append(out, f.Ref)
	}
	return out
}

var _ = Describe("Processor", func() {
	It("should route a single stub into its sector", func() {
		f := newFixture(setup.DefaultConfig())
		ref := f.push(5, true)

		p := gp.New(f.df, gp.WithLogger(GinkgoLogr))
		accepted, lost := p.Process(f.input)

		Expect(accepted).To(HaveLen(f.s.NumSectors()))
		Expect(refs(accepted[sector])).To(Equal([]*stream.Ref{ref}))
		Expect(accepted.Count()).To(Equal(1))
		Expect(lost.Count()).To(BeZero())

		stub := f.df.DecodeGP(accepted[sector][0].Bits)
		Expect(math.Abs(stub.Phi - f.s.BaseSector()/2)).To(BeNumerically("<=", f.df.Base(formats.Phi, formats.GP)))
		Expect(math.Abs(stub.Z)).To(BeNumerically("<=", f.df.Base(formats.Z, formats.GP)))
		Expect(p.Stats().Accepted).To(Equal(uint64(1)))
	})

	It("should count stubs outside the sector frame without losing them", func() {
		f := newFixture(setup.DefaultConfig())
		f.push(5, true)
		r := 10.0
		far := formats.StubPP{
			R:          r,
			Z:          (r+f.s.ChosenRofPhi())*f.s.SectorCot(eta) + 200,
			Layer:      1,
			SectorsPhi: bitvec.New(0b01, 2),
			EtaMin:     eta,
			EtaMax:     eta,
			QMin:       -8,
			QMax:       7,
		}
		f.input[5] = append(f.input[5], stream.Frame{Ref: &stream.Ref{ID: 99}, Bits: f.df.EncodePP(far)})

		p := gp.New(f.df)
		accepted, lost := p.Process(f.input)

		Expect(accepted.Count()).To(Equal(1))
		Expect(lost.Count()).To(BeZero())
		Expect(p.Stats().OutOfRange).To(Equal(uint64(1)))
		Expect(p.Stats().Accepted).To(Equal(uint64(1)))
	})

	It("should read the highest ready link first", func() {
		f := newFixture(setup.DefaultConfig())
		low := f.push(3, true)
		high := f.push(7, true)

		accepted, _ := gp.New(f.df).Process(f.input)
		Expect(refs(accepted[sector])).To(Equal([]*stream.Ref{high, low}))
	})

	It("should keep the timing of a link without contention", func() {
		f := newFixture(setup.DefaultConfig())
		a := f.push(2, true)
		f.push(2, false)
		b := f.push(2, true)
		f.push(2, false)

		accepted, _ := gp.New(f.df).Process(f.input)
		Expect(refs(accepted[sector])).To(Equal([]*stream.Ref{a, nil, b}))
	})

	It("should push the oldest stub out of a full FIFO", func() {
		config := setup.DefaultConfig()
		config.GPDepthMemory = 2
		f := newFixture(config)
		var a, b []*stream.Ref
		for i := 0; i < 4; i++ {
			a = append(a, f.push(0, true))
			b = append(b, f.push(1, true))
		}

		p := gp.New(f.df)
		accepted, lost := p.Process(f.input)
		Expect(refs(accepted[sector])).To(Equal([]*stream.Ref{b[0], b[1], b[2], b[3], a[3]}))
		Expect(refs(lost[sector])).To(Equal([]*stream.Ref{a[0], a[1], a[2]}))
		Expect(p.Stats().LostMemory).To(Equal(uint64(3)))
	})

	Describe("with a short time multiplexed period", func() {
		var f *fixture

		BeforeEach(func() {
			config := setup.DefaultConfig()
			config.TMPTFP = 1
			config.NumFramesInfra = 2
			f = newFixture(config)
			Expect(f.s.NumFrames()).To(Equal(7))
			Expect(f.s.NumFramesIO()).To(Equal(4))
		})

		It("should lose stubs past the input link budget", func() {
			for i := 0; i < 6; i++ {
				f.push(0, true)
			}
			p := gp.New(f.df)
			accepted, lost := p.Process(f.input)
			Expect(accepted[sector].Count()).To(Equal(4))
			Expect(lost[sector].Count()).To(Equal(2))
			Expect(p.Stats().LostInput).To(Equal(uint64(2)))
		})

		It("should lose stubs past the output budget and conserve the rest", func() {
			for i := 0; i < 4; i++ {
				for link := 0; link < 3; link++ {
					f.push(link, true)
				}
			}
			p := gp.New(f.df)
			accepted, lost := p.Process(f.input)
			Expect(accepted[sector]).To(HaveLen(7))
			Expect(accepted[sector].Count()).To(Equal(7))
			Expect(lost[sector].Count()).To(Equal(5))
			Expect(p.Stats().LostOutput).To(Equal(uint64(5)))
			Expect(p.Stats().Lost() + p.Stats().Accepted).To(Equal(p.Stats().Input))
		})

		It("should accept everything with truncation disabled", func() {
			config := setup.DefaultConfig()
			config.TMPTFP = 1
			config.NumFramesInfra = 2
			config.EnableTruncation = false
			f = newFixture(config)
			for i := 0; i < 6; i++ {
				for link := 0; link < 3; link++ {
					f.push(link, true)
				}
			}
			accepted, lost := gp.New(f.df).Process(f.input)
			Expect(accepted[sector].Count()).To(Equal(18))
			Expect(lost.Count()).To(BeZero())
		})
	})
})
