package stream_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/stream"
)

func frame(id int, bits uint64) stream.Frame {
	return stream.Frame{Ref: &stream.Ref{ID: id}, Bits: bitvec.New(bits, 64)}
}

func byBits(f stream.Frame) uint64 { return f.Bits.Uint64() }

var _ = Describe("Stream", func() {
	It("should count valid frames", func() {
		s := stream.Stream{frame(0, 1), stream.Gap(), frame(1, 2)}
		Expect(s.Count()).To(Equal(2))
		Expect(s.Valid()).To(HaveLen(2))
	})

	It("should trim trailing gaps only", func() {
		s := stream.Stream{stream.Gap(), frame(0, 1), stream.Gap(), stream.Gap()}
		Expect(s.TrimTrailingGaps()).To(HaveLen(2))
		Expect(stream.Stream{stream.Gap()}.TrimTrailingGaps()).To(BeEmpty())
	})

	Describe("Truncate", func() {
		var s stream.Stream

		BeforeEach(func() {
			s = stream.Stream{frame(0, 1), stream.Gap(), frame(1, 2), frame(2, 3), stream.Gap(), frame(3, 4)}
		})

		It("should move valid frames past the limit to lost", func() {
			accepted, lost := stream.Truncate(s, 3, true)
			Expect(accepted).To(HaveLen(3))
			Expect(lost).To(HaveLen(2))
			Expect(accepted.Count() + lost.Count()).To(Equal(s.Count()))
		})

		It("should accept everything when disabled", func() {
			accepted, lost := stream.Truncate(s, 3, false)
			Expect(accepted).To(HaveLen(len(s)))
			Expect(lost).To(BeEmpty())
		})

		It("should accept short streams", func() {
			accepted, lost := stream.Truncate(s, 10, true)
			Expect(accepted).To(HaveLen(len(s)))
			Expect(lost).To(BeEmpty())
		})
	})

	Describe("Runs", func() {
		It("should group contiguous equal ids", func() {
			s := stream.Stream{frame(0, 7), frame(1, 7), frame(2, 9), stream.Gap(), frame(3, 9), frame(4, 7)}
			runs := stream.Runs(s, byBits)
			Expect(runs).To(Equal([]stream.Run{
				{ID: 7, Start: 0, End: 2},
				{ID: 9, Start: 2, End: 3},
				{ID: 9, Start: 4, End: 5},
				{ID: 7, Start: 5, End: 6},
			}))
			Expect(runs[0].Len()).To(Equal(2))
		})

		It("should return nothing for gaps only", func() {
			Expect(stream.Runs(stream.Stream{stream.Gap(), stream.Gap()}, byBits)).To(BeEmpty())
		})
	})

	Describe("WriteHex", func() {
		It("should write the link format", func() {
			streams := stream.Streams{
				{frame(0, 0xabc)},
				{stream.Gap(), frame(1, 0x1)},
			}
			var buf bytes.Buffer
			err := stream.WriteHex(&buf, streams, stream.HexOptions{
				NumRegions: 1, NumChannel: 2, NumFrames: 1, NumFramesInfra: 1,
			})
			Expect(err).NotTo(HaveOccurred())

			lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
			Expect(lines).To(HaveLen(6))
			Expect(lines[0]).To(Equal("Board CMSSW"))
			Expect(lines[1]).To(HavePrefix(" Quad/Chan :        q00c0"))
			Expect(lines[2]).To(HavePrefix("      Link :         000"))
			Expect(lines[3]).To(Equal("Frame 0000 : 0v0000000000000000 0v0000000000000000"))
			Expect(lines[4]).To(Equal("Frame 0001 : 1v0000000000000abc 1v0000000000000000"))
			Expect(lines[5]).To(Equal("Frame 0002 : 1v0000000000000000 1v0000000000000001"))
		})

		It("should interleave tracks and stubs", func() {
			tracks := stream.Streams{{frame(0, 0xf)}}
			stubs := stream.Streams{{frame(0, 0x1)}}
			var buf bytes.Buffer
			err := stream.WritePairedHex(&buf, tracks, stubs, stream.HexOptions{
				NumRegions: 1, NumChannel: 1, NumFrames: 1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.String()).To(ContainSubstring("Frame 0000 : 1v000000000000000f 1v0000000000000001\n"))
		})
	})
})
