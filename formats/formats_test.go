package formats_test

import (
	"math"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

var _ = Describe("DataFormats", func() {
	var (
		s  *setup.Setup
		df *formats.DataFormats
	)

	BeforeEach(func() {
		s = setup.MustNew(setup.DefaultConfig())
		df = formats.New(s)
	})

	DescribeTable("default widths",
		func(v formats.Variable, p formats.Process, width int) {
			Expect(df.Width(v, p)).To(Equal(width))
		},
		Entry("phiT ht", formats.PhiT, formats.HT, 5),
		Entry("qOverPt ht", formats.QoverPt, formats.HT, 4),
		Entry("r ht", formats.R, formats.HT, 12),
		Entry("phi gp", formats.Phi, formats.GP, 14),
		Entry("phi dtc", formats.Phi, formats.DTC, 15),
		Entry("z dtc", formats.Z, formats.DTC, 12),
		Entry("z gp", formats.Z, formats.GP, 11),
		Entry("phi ht", formats.Phi, formats.HT, 9),
		Entry("phiT mht", formats.PhiT, formats.MHT, 6),
		Entry("qOverPt mht", formats.QoverPt, formats.MHT, 5),
		Entry("phi mht", formats.Phi, formats.MHT, 8),
		Entry("z0 sf", formats.Z0, formats.SF, 4),
		Entry("cot sf", formats.Cot, formats.SF, 3),
		Entry("layer", formats.Layer, formats.HT, 3),
		Entry("sectorEta", formats.SectorEta, formats.GP, 4),
		Entry("sectorPhi", formats.SectorPhi, formats.GP, 1),
		Entry("hitPattern", formats.HitPattern, formats.KFin, 7),
		Entry("layerMap", formats.LayerMap, formats.KFin, 14),
	)

	It("should derive bases from earlier formats", func() {
		Expect(df.Base(formats.PhiT, formats.HT)).To(BeNumerically("~", 2*math.Pi/18/32, 1e-12))
		Expect(df.Base(formats.QoverPt, formats.HT)).To(BeNumerically("~", 2.38e-4, 1e-6))
		Expect(df.Base(formats.PhiT, formats.MHT)).To(BeNumerically("~", df.Base(formats.PhiT, formats.HT)/2, 1e-15))
		Expect(df.Base(formats.Phi, formats.DTC)).To(Equal(df.Base(formats.Phi, formats.GP)))
		Expect(df.Base(formats.Cot, formats.SF)).To(Equal(0.5))
	})

	It("should alias cells to their owner", func() {
		Expect(df.Format(formats.Z, formats.SF)).To(Equal(df.Format(formats.Z, formats.GP)))
		Expect(df.Format(formats.R, formats.KFin)).To(Equal(df.Format(formats.R, formats.HT)))
		owner, ok := df.Owner(formats.Phi, formats.LR)
		Expect(ok).To(BeTrue())
		Expect(owner).To(Equal(formats.MHT))
	})

	It("should panic on quantities a stage does not carry", func() {
		Expect(df.Has(formats.ZT, formats.GP)).To(BeFalse())
		Expect(func() { df.Format(formats.ZT, formats.GP) }).To(Panic())
		Expect(func() { df.Width(formats.SectorsPhi, formats.MHT) }).To(Panic())
	})

	It("should count channels per stage", func() {
		Expect(df.NumChannel(formats.PP)).To(Equal(48))
		Expect(df.NumChannel(formats.GP)).To(Equal(32))
		Expect(df.NumChannel(formats.HT)).To(Equal(16))
		Expect(df.NumChannel(formats.LR)).To(Equal(16))
		Expect(df.NumChannel(formats.KFin)).To(Equal(2))
		Expect(df.NumStreams(formats.MHT)).To(Equal(16 * 9))
	})

	It("should fit every record into one frame", func() {
		for rec := formats.RecordDTC; rec <= formats.RecordKFinTrack; rec++ {
			Expect(df.RecordWidth(rec)).To(BeNumerically("<=", bitvec.MaxSize), rec.String())
		}
		Expect(df.RecordWidth(formats.RecordMHT)).To(Equal(52))
		Expect(df.RecordWidth(formats.RecordSF)).To(Equal(59))
	})

	Describe("Format", func() {
		It("should round trip values within one LSB", func() {
			f := df.Format(formats.Phi, formats.GP)
			for d := -f.Range() / 2; d < f.Range()/2; d += f.Range() / 97 {
				Expect(f.InRange(d)).To(BeTrue())
				i := f.Integer(d)
				Expect(math.Abs(f.Floating(i) - d)).To(BeNumerically("<=", f.Base()/2+1e-15))
				Expect(f.Int(f.BV(i))).To(Equal(i))
			}
		})

		It("should cover a half open range", func() {
			f := df.Format(formats.Z, formats.GP)
			Expect(f.InRange(-f.Range() / 2)).To(BeTrue())
			Expect(f.InRange(f.Range() / 2)).To(BeFalse())
			Expect(f.InRange(math.Inf(1))).To(BeFalse())
		})

		It("should map between signed and unsigned bins", func() {
			f := df.Format(formats.QoverPt, formats.HT)
			Expect(f.ToSigned(0)).To(Equal(-8))
			Expect(f.ToUnsigned(-8)).To(Equal(0))
			for i := 0; i < 16; i++ {
				Expect(f.ToUnsigned(f.ToSigned(i))).To(Equal(i))
			}
		})

		It("should offset encode signed values", func() {
			f := df.Format(formats.PhiT, formats.HT)
			Expect(f.BV(-16).Uint64()).To(Equal(uint64(0)))
			Expect(f.BV(0).Uint64()).To(Equal(uint64(16)))
		})
	})

	Describe("records", func() {
		It("should attach the first field most significant", func() {
			bv := df.Attach(formats.RecordLR, 5, -3, 7, -100)
			width := df.RecordWidth(formats.RecordLR)
			phiTWidth := df.Width(formats.PhiT, formats.LR)
			Expect(bv.Size()).To(Equal(width))
			Expect(bv.Slice(width-phiTWidth, width).Int(true)).To(Equal(5))

			var phiT, qOverPt, zT, cot int
			df.Extract(formats.RecordLR, bv, &phiT, &qOverPt, &zT, &cot)
			Expect([]int{phiT, qOverPt, zT, cot}).To(Equal([]int{5, -3, 7, -100}))
		})

		It("should panic on a field count mismatch", func() {
			Expect(func() { df.Attach(formats.RecordLR, 1, 2) }).To(Panic())
		})

		It("should read the track id from the low bits", func() {
			mht := formats.StubMHT{Layer: 2, SectorPhi: 1, SectorEta: 9, PhiT: -7, QoverPt: 5}
			bv := df.EncodeMHT(mht)

			var want bitvec.BV
			want.Attach(df.Format(formats.SectorPhi, formats.MHT).BV(1))
			want.Attach(df.Format(formats.SectorEta, formats.MHT).BV(9))
			want.Attach(df.Format(formats.PhiT, formats.MHT).BV(-7))
			want.Attach(df.Format(formats.QoverPt, formats.MHT).BV(5))
			Expect(df.TrackID(formats.RecordMHT, bv)).To(Equal(want.Uint64()))

			other := mht
			other.R = df.Format(formats.R, formats.MHT).Floating(40)
			Expect(df.TrackID(formats.RecordMHT, df.EncodeMHT(other))).To(Equal(want.Uint64()))
			other.PhiT = -6
			Expect(df.TrackID(formats.RecordMHT, df.EncodeMHT(other))).NotTo(Equal(want.Uint64()))
		})
	})

	Describe("stubs", func() {
		It("should decode what it encodes", func() {
			fR, fPhi, fZ := df.Format(formats.R, formats.SF), df.Format(formats.Phi, formats.SF), df.Format(formats.Z, formats.SF)
			stub := formats.StubSF{
				StubMHT: formats.StubMHT{
					Barrel: true, PS: true,
					R: fR.Floating(-300), Phi: fPhi.Floating(17), Z: fZ.Floating(-250),
					Layer: 4, SectorPhi: 1, SectorEta: 12, PhiT: 21, QoverPt: -9,
				},
				Z0:  df.Format(formats.Z0, formats.SF).Floating(-3),
				Cot: df.Format(formats.Cot, formats.SF).Floating(2),
			}
			decoded := df.DecodeSF(df.EncodeSF(stub))
			Expect(cmp.Diff(stub, decoded)).To(BeEmpty())
		})

		It("should move gp stubs into the sector frame", func() {
			eta := 10
			r := 20.0
			pp := formats.StubPP{
				R:   r,
				Phi: s.BaseSector() / 2,
				Z:   (r + s.ChosenRofPhi()) * s.SectorCot(eta),
			}
			gp, ok := df.NewStubGP(pp, 1, eta)
			Expect(ok).To(BeTrue())
			Expect(math.Abs(gp.Phi)).To(BeNumerically("<=", df.Base(formats.Phi, formats.GP)))
			Expect(math.Abs(gp.Z)).To(BeNumerically("<=", df.Base(formats.Z, formats.GP)))

			pp.Z += 500
			_, ok = df.NewStubGP(pp, 1, eta)
			Expect(ok).To(BeFalse())
		})

		It("should expand sector ranges into a sector mask", func() {
			pp := formats.StubPP{SectorsPhi: bitvec.New(0b10, 2), EtaMin: 3, EtaMax: 4}
			mask := df.InSector(pp)
			Expect(mask.Count()).To(Equal(2))
			Expect(mask.Test(3*2 + 1)).To(BeTrue())
			Expect(mask.Test(4*2 + 1)).To(BeTrue())
		})

		It("should refine ht stubs into fine cells", func() {
			ht := formats.StubHT{R: 10, Layer: 1, SectorPhi: 0, SectorEta: 3, PhiT: 4, QoverPt: -2}
			mht, ok := df.NewStubMHT(ht, true, false, 1, 0)
			Expect(ok).To(BeTrue())
			Expect(mht.PhiT).To(Equal(9))
			Expect(mht.QoverPt).To(Equal(-4))
			Expect(mht.Barrel).To(BeTrue())
			Expect(mht.PS).To(BeFalse())
		})

		It("should reject fits outside the lr formats", func() {
			_, ok := df.NewTrackLR(0.01, 1e-4, 1, 0.1)
			Expect(ok).To(BeTrue())
			_, ok = df.NewTrackLR(10, 1e-4, 1, 0.1)
			Expect(ok).To(BeFalse())
		})

		It("should saturate layer map counts", func() {
			layerMap := bitvec.New(0, df.Width(formats.LayerMap, formats.KFin))
			formats.SetLayerCount(&layerMap, 2, 5)
			formats.SetLayerCount(&layerMap, 0, 1)
			Expect(formats.LayerCount(layerMap, 2)).To(Equal(3))
			Expect(formats.LayerCount(layerMap, 0)).To(Equal(1))
			Expect(formats.LayerCount(layerMap, 1)).To(Equal(0))
		})
	})

	Describe("KalmanFilterFormats", func() {
		It("should derive state formats from the sf formats", func() {
			kf := formats.NewKF(df)
			Expect(kf.Format(formats.X0).Width()).To(Equal(15))
			Expect(kf.Format(formats.X3).Width()).To(Equal(12))
			Expect(kf.Format(formats.M0)).To(Equal(df.Format(formats.Phi, formats.SF)))
			x0 := kf.Base(formats.X0)
			Expect(kf.Base(formats.C00)).To(BeNumerically("~", math.Exp2(-5)*x0*x0, 1e-30))
			Expect(kf.Format(formats.C01).Twos()).To(BeTrue())
			Expect(kf.Format(formats.C00).Twos()).To(BeFalse())
		})
	})
})
