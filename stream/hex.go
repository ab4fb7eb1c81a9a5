package stream

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/tfpsim/bitvec"
)

// HexOptions describes the link layout of a text dump.
type HexOptions struct {
	NumRegions     int // regions written one after another
	NumChannel     int // channels per region
	NumFrames      int // payload frames per region
	NumFramesInfra int // infrastructure gap frames leading each region
}

const hexDigits = bitvec.MaxSize / 4

type hexWriter struct {
	w      *bufio.Writer
	nFrame int
}

func (h *hexWriter) header(links int) {
	fmt.Fprint(h.w, "Board CMSSW\n Quad/Chan :")
	for link := 0; link < links; link++ {
		fmt.Fprintf(h.w, "        q%02dc%d      ", link/4, link%4)
	}
	fmt.Fprint(h.w, "\n      Link :")
	for link := 0; link < links; link++ {
		fmt.Fprintf(h.w, "         %03d       ", link)
	}
	fmt.Fprintln(h.w)
}

func (h *hexWriter) frame() {
	fmt.Fprintf(h.w, "Frame %04d :", h.nFrame)
	h.nFrame++
}

func (h *hexWriter) infraGap(infra, links int) {
	for gap := 0; gap < infra; gap++ {
		h.frame()
		for link := 0; link < links; link++ {
			fmt.Fprintf(h.w, " 0v%0*x", hexDigits, 0)
		}
		fmt.Fprintln(h.w)
	}
}

func (h *hexWriter) word(s Stream, i int) {
	var bits uint64
	if i < len(s) {
		bits = s[i].Bits.Uint64()
	}
	fmt.Fprintf(h.w, " 1v%0*x", hexDigits, bits)
}

// WriteHex dumps streams in the line oriented link format: one line per clock
// tick and one 64 bit word per channel.
func WriteHex(w io.Writer, streams Streams, opts HexOptions) error {
	h := &hexWriter{w: bufio.NewWriter(w)}
	h.header(opts.NumChannel)
	for region := 0; region < opts.NumRegions; region++ {
		h.infraGap(opts.NumFramesInfra, opts.NumChannel)
		for frame := 0; frame < opts.NumFrames+opts.NumFramesInfra; frame++ {
			h.frame()
			for channel := 0; channel < opts.NumChannel; channel++ {
				h.word(streams[region*opts.NumChannel+channel], frame)
			}
			fmt.Fprintln(h.w)
		}
	}
	return h.w.Flush()
}

// WritePairedHex dumps track and stub streams side by side, two links per
// channel with the track word first.
func WritePairedHex(w io.Writer, tracks, stubs Streams, opts HexOptions) error {
	h := &hexWriter{w: bufio.NewWriter(w)}
	links := 2 * opts.NumChannel
	h.header(links)
	for region := 0; region < opts.NumRegions; region++ {
		h.infraGap(opts.NumFramesInfra, links)
		for frame := 0; frame < opts.NumFrames+opts.NumFramesInfra; frame++ {
			h.frame()
			for channel := 0; channel < opts.NumChannel; channel++ {
				index := region*opts.NumChannel + channel
				h.word(tracks[index], frame)
				h.word(stubs[index], frame)
			}
			fmt.Fprintln(h.w)
		}
	}
	return h.w.Flush()
}
