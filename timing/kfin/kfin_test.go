package kfin_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
	"github.com/sarchlab/tfpsim/timing/kfin"
)

var _ = Describe("Stager", func() {
	const (
		channel   = 2
		sectorPhi = 1
	)

	var (
		s      *setup.Setup
		df     *formats.DataFormats
		enc    *layerenc.Encoding
		stubs  stream.Streams
		tracks stream.Streams
		next   int
	)

	newStager := func(config *setup.Config) {
		s = setup.MustNew(config)
		df = formats.New(s)
		enc = layerenc.New(df)
		stubs = stream.NewStreams(df.NumChannel(formats.LR))
		tracks = stream.NewStreams(df.NumChannel(formats.LR))
		next = 0
	}

	type stubSpec struct {
		layer  int
		barrel bool
	}

	// candidate appends a fitted candidate of the central sector whose seed
	// encodes barrel layers 1 to 6.
	candidate := func(specs ...stubSpec) {
		ref := &stream.Ref{ID: next}
		track := df.EncodeLR(formats.TrackLR{})
		for _, spec := range specs {
			stub := formats.StubSF{
				StubMHT: formats.StubMHT{
					Barrel: spec.barrel, PS: true, R: 10, Layer: spec.layer,
					SectorPhi: sectorPhi, SectorEta: 8, PhiT: 2, QoverPt: 1,
				},
				Z0:  df.Format(formats.Z0, formats.SF).Floating(-1),
				Cot: df.Format(formats.Cot, formats.SF).Floating(0),
			}
			stubs[channel] = append(stubs[channel], stream.Frame{
				Ref: &stream.Ref{ID: next}, Bits: df.EncodeSF(stub),
			})
			tracks[channel] = append(tracks[channel], stream.Frame{Ref: ref, Bits: track})
			next++
		}
	}

	barrel := func(layers ...int) []stubSpec {
		specs := make([]stubSpec, len(layers))
		for i, l := range layers {
			specs[i] = stubSpec{layer: l, barrel: true}
		}
		return specs
	}

	BeforeEach(func() {
		newStager(setup.DefaultConfig())
	})

	It("should renumber stub layers", func() {
		candidate(barrel(0, 1, 2, 3, 4)...)

		st := kfin.New(df, enc, kfin.WithLogger(GinkgoLogr))
		out := st.Process(stubs, tracks)

		Expect(out.AcceptedTracks).To(HaveLen(s.NumSectorsPhi()))
		Expect(out.AcceptedTracks[sectorPhi]).To(HaveLen(1))
		track := df.DecodeKFinTrack(out.AcceptedTracks[sectorPhi][0].Bits)
		// layer ids 1, 2, 6, 5, 4 sit at positions 0, 1, 5, 4, 3
		Expect(track.HitPattern.Uint64()).To(Equal(uint64(0b111011)))
		Expect(track.SectorEta).To(Equal(8))
		Expect(track.PhiT).To(Equal(2))
		Expect(track.QoverPt).To(Equal(1))

		Expect(out.AcceptedStubs).To(HaveLen(s.NumSectorsPhi() * s.NumLayers()))
		layer5 := out.AcceptedStubs[sectorPhi*s.NumLayers()+5]
		Expect(layer5).To(HaveLen(1))
		Expect(layer5[0].Ref.ID).To(Equal(2))
		Expect(df.DecodeKFinStub(layer5[0].Bits).Layer).To(Equal(5))

		Expect(st.Stats().Tracks).To(Equal(uint64(1)))
		Expect(st.Stats().Stubs).To(Equal(uint64(5)))
	})

	It("should drop stubs on layers outside the encoding", func() {
		candidate(append(barrel(0, 1, 3, 4), stubSpec{layer: 2, barrel: false})...)

		st := kfin.New(df, enc)
		out := st.Process(stubs, tracks)

		Expect(out.AcceptedTracks[sectorPhi]).To(HaveLen(1))
		Expect(out.AcceptedStubs.Count()).To(Equal(4))
		Expect(st.Stats().LayerMisses).To(Equal(uint64(1)))
	})

	It("should ignore slots without a fitted track", func() {
		candidate(barrel(0, 1, 2, 3)...)
		for i := range tracks[channel] {
			tracks[channel][i] = stream.Gap()
		}

		out := kfin.New(df, enc).Process(stubs, tracks)

		Expect(out.AcceptedTracks.Count()).To(BeZero())
		Expect(out.AcceptedStubs.Count()).To(BeZero())
	})

	It("should saturate the layer map", func() {
		candidate(barrel(0, 0, 0, 0, 1)...)

		st := kfin.New(df, enc)
		out := st.Process(stubs, tracks)

		track := df.DecodeKFinTrack(out.AcceptedTracks[sectorPhi][0].Bits)
		Expect(formats.LayerCount(track.LayerMap, 0)).To(Equal(3))
		Expect(formats.LayerCount(track.LayerMap, 1)).To(Equal(1))
		Expect(st.Stats().Overflow).To(Equal(uint64(1)))
	})

	It("should unpack staged tracks", func() {
		candidate(barrel(0, 1, 2, 3)...)
		candidate(barrel(0, 0, 1, 4)...)

		out := kfin.New(df, enc).Process(stubs, tracks)
		unpacked, err := kfin.Unpack(df, out.AcceptedTracks, out.AcceptedStubs)

		Expect(err).NotTo(HaveOccurred())
		Expect(unpacked).To(HaveLen(2))
		Expect(unpacked[0].Stubs[5]).To(HaveLen(1))
		Expect(unpacked[1].Stubs[0]).To(HaveLen(2))
		Expect(unpacked[1].Stubs[3]).To(HaveLen(1))
		Expect(unpacked[1].HitLayer(5)).To(BeFalse())
		Expect(unpacked[1].Ref.ID).To(Equal(4))
	})

	It("should report missing stubs when unpacking", func() {
		candidate(barrel(0, 1, 2, 3)...)

		out := kfin.New(df, enc).Process(stubs, tracks)
		out.AcceptedStubs[sectorPhi*s.NumLayers()] = nil
		_, err := kfin.Unpack(df, out.AcceptedTracks, out.AcceptedStubs)

		Expect(err).To(MatchError(kfin.ErrStubsMissing))
	})

	Context("with a track limit of one", func() {
		BeforeEach(func() {
			config := setup.DefaultConfig()
			config.SFMaxTracks = 1
			newStager(config)
		})

		It("should cap the tracks per channel", func() {
			candidate(barrel(0, 1, 2, 3)...)
			candidate(barrel(0, 1, 2, 3)...)

			st := kfin.New(df, enc)
			out := st.Process(stubs, tracks)

			Expect(out.AcceptedTracks.Count()).To(Equal(1))
			Expect(st.Stats().Capped).To(Equal(uint64(1)))
		})
	})

	Context("with a small frame budget", func() {
		BeforeEach(func() {
			config := setup.DefaultConfig()
			config.TMPTFP = 1
			config.NumFramesInfra = 2
			newStager(config)
		})

		It("should move tracks past the budget to lost", func() {
			for i := 0; i < s.NumFrames()+1; i++ {
				candidate(barrel(0)...)
			}

			st := kfin.New(df, enc)
			out := st.Process(stubs, tracks)

			Expect(out.AcceptedTracks[sectorPhi]).To(HaveLen(s.NumFrames()))
			Expect(out.LostTracks[sectorPhi]).To(HaveLen(1))
			Expect(out.LostStubs[sectorPhi*s.NumLayers()]).To(HaveLen(1))
			Expect(st.Stats().LostTracks).To(Equal(uint64(1)))
		})

		It("should accept everything without truncation", func() {
			config := setup.DefaultConfig()
			config.TMPTFP = 1
			config.NumFramesInfra = 2
			config.EnableTruncation = false
			newStager(config)
			for i := 0; i < s.NumFrames()+1; i++ {
				candidate(barrel(0)...)
			}

			out := kfin.New(df, enc).Process(stubs, tracks)

			Expect(out.AcceptedTracks[sectorPhi]).To(HaveLen(s.NumFrames() + 1))
			Expect(out.LostTracks.Count()).To(BeZero())
		})
	})
})
