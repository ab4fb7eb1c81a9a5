package core_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/benchmarks"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
	"github.com/sarchlab/tfpsim/timing/core"
	"github.com/sarchlab/tfpsim/timing/kfin"
)

var _ = Describe("Core", func() {
	var (
		s   *setup.Setup
		df  *formats.DataFormats
		enc *layerenc.Encoding
		g   *benchmarks.Generator
		c   *core.Core
	)

	BeforeEach(func() {
		s = setup.MustNew(setup.DefaultConfig())
		df = formats.New(s)
		enc = layerenc.New(df)
		g = benchmarks.NewGenerator(df, 1)
		c = core.New(df, enc, core.WithLogger(GinkgoLogr), core.WithParallelism(3))
	})

	input := func(tracks ...benchmarks.Track) stream.Streams {
		streams, err := g.Event("test", tracks...).Streams(df)
		Expect(err).NotTo(HaveOccurred())
		return streams
	}

	It("should reject input of the wrong size", func() {
		_, err := c.Run(context.Background(), stream.NewStreams(3))
		Expect(err).To(MatchError(core.ErrInputSize))
	})

	It("should stop on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Run(ctx, input())
		Expect(err).To(MatchError(context.Canceled))
	})

	It("should lay out an empty event per region", func() {
		res, err := c.Run(context.Background(), input())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RunID).NotTo(Equal(uuid.Nil))

		numRegions := s.NumRegions()
		Expect(res.GP.Accepted).To(HaveLen(numRegions * df.NumChannel(formats.GP)))
		Expect(res.HT.Accepted).To(HaveLen(numRegions * df.NumChannel(formats.HT)))
		Expect(res.MHT.Lost).To(HaveLen(numRegions * df.NumChannel(formats.MHT)))
		Expect(res.SF.Accepted).To(HaveLen(numRegions * df.NumChannel(formats.SF)))
		Expect(res.LRTracks).To(HaveLen(numRegions * df.NumChannel(formats.LR)))
		Expect(res.KFinTracks.Accepted).To(HaveLen(numRegions * df.NumChannel(formats.KFin)))
		Expect(res.KFinStubs.Accepted).To(HaveLen(numRegions * df.NumChannel(formats.KFin) * s.NumLayers()))

		Expect(res.Stats.Regions).To(Equal(uint64(numRegions)))
		Expect(res.Stats.Input).To(BeZero())
		Expect(res.Stats.GP.Accepted).To(BeZero())
	})

	It("should give every run its own id", func() {
		a, err := c.Run(context.Background(), input())
		Expect(err).NotTo(HaveOccurred())
		b, err := c.Run(context.Background(), input())
		Expect(err).NotTo(HaveOccurred())
		Expect(a.RunID).NotTo(Equal(b.RunID))
	})

	It("should carry a clean track through every stage", func() {
		track := benchmarks.EndcapTrack(g)
		res, err := c.Run(context.Background(), input(track))
		Expect(err).NotTo(HaveOccurred())

		Expect(res.Stats.Input).To(Equal(uint64(5)))
		Expect(res.GP.Accepted.Count()).To(Equal(5))
		Expect(res.HT.Accepted.Count()).To(Equal(5))
		Expect(res.LRStubs.Count()).To(Equal(5))
		Expect(res.Stats.LR.Fitted).To(Equal(uint64(1)))

		numKFin := df.NumChannel(formats.KFin)
		tracks, err := kfin.Unpack(df,
			res.KFinTracks.Accepted.Region(0, numKFin),
			res.KFinStubs.Accepted.Region(0, numKFin*s.NumLayers()))
		Expect(err).NotTo(HaveOccurred())
		Expect(tracks).To(HaveLen(1))

		t := tracks[0]
		Expect(t.SectorPhi).To(Equal(1))
		Expect(t.SectorEta).To(Equal(13))
		Expect(t.HitPattern.Uint64()).To(Equal(uint64(0b11111)))
		Expect(t.Z0).To(Equal(track.Z0))
		for layer := 0; layer < 5; layer++ {
			Expect(t.Stubs[layer]).To(HaveLen(1))
		}

		for r := 1; r < s.NumRegions(); r++ {
			Expect(res.KFinTracks.Accepted.Region(r, numKFin).Count()).To(BeZero())
		}
	})

	It("should sum counters over regions", func() {
		a := benchmarks.EndcapTrack(g)
		b := a
		b.Region = 4
		res, err := c.Run(context.Background(), input(a, b))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Stats.Input).To(Equal(uint64(10)))
		Expect(res.Stats.KFin.Tracks).To(Equal(uint64(2)))
	})
})
