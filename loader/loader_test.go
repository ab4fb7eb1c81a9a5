package loader_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/loader"
	"github.com/sarchlab/tfpsim/setup"
)

func tick(i int) *int { return &i }

var _ = Describe("Event Loader", func() {
	var (
		s       *setup.Setup
		df      *formats.DataFormats
		tempDir string
		stub    loader.Stub
	)

	BeforeEach(func() {
		s = setup.MustNew(setup.DefaultConfig())
		df = formats.New(s)

		var err error
		tempDir, err = os.MkdirTemp("", "event-loader-test")
		Expect(err).NotTo(HaveOccurred())

		stub = loader.Stub{
			Region:     2,
			Channel:    5,
			Module:     7,
			R:          -20.3,
			Phi:        0.05,
			Z:          31.7,
			Layer:      1,
			SectorsPhi: []int{1},
			EtaMin:     9,
			EtaMax:     10,
			QMin:       -3,
			QMax:       2,
		}
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load and Save", func() {
		for _, name := range []string{"event.json", "event.yaml"} {
			It(fmt.Sprintf("should read back %s", name), func() {
				stub.Tick = tick(4)
				ev := &loader.Event{Name: "single", Stubs: []loader.Stub{stub, {Region: 1, Module: 3, Bits: "0x1f"}}}
				path := filepath.Join(tempDir, name)
				Expect(ev.Save(path)).To(Succeed())

				got, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cmp.Diff(ev, got)).To(BeEmpty())
			})
		}

		It("should fail on a missing file", func() {
			_, err := loader.Load(filepath.Join(tempDir, "missing.json"))
			Expect(err).To(HaveOccurred())
		})

		It("should fail on malformed content", func() {
			path := filepath.Join(tempDir, "bad.json")
			Expect(os.WriteFile(path, []byte("{stubs: ["), 0644)).To(Succeed())
			_, err := loader.Load(path)
			Expect(err).To(MatchError(ContainSubstring("failed to parse event")))
		})
	})

	Describe("Streams", func() {
		It("should encode physical fields into the link of the stub", func() {
			ev := &loader.Event{Stubs: []loader.Stub{stub}}
			streams, err := ev.Streams(df)
			Expect(err).NotTo(HaveOccurred())
			Expect(streams).To(HaveLen(s.NumRegions() * df.NumChannel(formats.PP)))

			link := streams[2*df.NumChannel(formats.PP)+5]
			Expect(link).To(HaveLen(1))
			Expect(link[0].Ref.ID).To(Equal(0))
			module, _ := s.Module(7)
			Expect(link[0].Ref.Module).To(BeIdenticalTo(module))

			pp := df.DecodePP(link[0].Bits)
			Expect(pp.R).To(Equal(df.Format(formats.R, formats.PP).Digi(stub.R)))
			Expect(pp.Phi).To(Equal(df.Format(formats.Phi, formats.PP).Digi(stub.Phi)))
			Expect(pp.Z).To(Equal(df.Format(formats.Z, formats.PP).Digi(stub.Z)))
			Expect(pp.Layer).To(Equal(1))
			Expect(pp.SectorsPhi.Uint64()).To(Equal(uint64(0b10)))
			Expect([]int{pp.EtaMin, pp.EtaMax, pp.QMin, pp.QMax}).To(Equal([]int{9, 10, -3, 2}))
			Expect(streams.Count()).To(Equal(1))
		})

		It("should place stubs at their tick", func() {
			first, second := stub, stub
			first.Tick = tick(2)
			second.Module = 8
			ev := &loader.Event{Stubs: []loader.Stub{first, second}}
			streams, err := ev.Streams(df)
			Expect(err).NotTo(HaveOccurred())

			link := streams[2*df.NumChannel(formats.PP)+5]
			Expect(link).To(HaveLen(4))
			Expect(link[0].Valid()).To(BeFalse())
			Expect(link[1].Valid()).To(BeFalse())
			Expect(link[2].Ref.ID).To(Equal(0))
			Expect(link[3].Ref.ID).To(Equal(1))
		})

		It("should take raw bits as they are", func() {
			bits := df.EncodePP(formats.StubPP{R: 3, Layer: 2, SectorsPhi: bitvec.New(0b01, 2), QMin: -1, QMax: 1})
			raw := loader.Stub{Region: 0, Channel: 0, Module: 0, Bits: fmt.Sprintf("0x%x", bits.Uint64())}
			streams, err := (&loader.Event{Stubs: []loader.Stub{raw}}).Streams(df)
			Expect(err).NotTo(HaveOccurred())
			Expect(streams[0][0].Bits.Equal(bits)).To(BeTrue())
		})

		It("should reject an unknown module", func() {
			stub.Module = len(s.Modules())
			_, err := (&loader.Event{Stubs: []loader.Stub{stub}}).Streams(df)
			Expect(err).To(MatchError(loader.ErrUnknownModule))
		})

		It("should reject links outside the processor", func() {
			stub.Channel = df.NumChannel(formats.PP)
			_, err := (&loader.Event{Stubs: []loader.Stub{stub}}).Streams(df)
			Expect(err).To(MatchError(loader.ErrOutOfRange))
		})

		It("should reject fields outside their format", func() {
			stub.Z = 2 * s.HalfLength()
			_, err := (&loader.Event{Stubs: []loader.Stub{stub}}).Streams(df)
			Expect(err).To(MatchError(loader.ErrOutOfRange))
		})

		It("should reject bits wider than a pp frame", func() {
			raw := loader.Stub{Bits: "0xffffffffffffffff"}
			_, err := (&loader.Event{Stubs: []loader.Stub{raw}}).Streams(df)
			Expect(err).To(MatchError(loader.ErrOutOfRange))
		})

		It("should reject stubs placed before the end of their link", func() {
			first, second := stub, stub
			first.Tick = tick(3)
			second.Tick = tick(1)
			_, err := (&loader.Event{Stubs: []loader.Stub{first, second}}).Streams(df)
			Expect(err).To(MatchError(loader.ErrTickOrder))
		})
	})
})
