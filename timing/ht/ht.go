// Package ht emulates the coarse Hough transform, which groups the stubs of
// every sector into (phiT, q/pT) cells.
package ht

import (
	"math/bits"

	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
)

// Statistics holds coarse Hough transform counters.
type Statistics struct {
	// Input is the number of sector stubs received.
	Input uint64
	// Candidates is the number of cells passing the layer threshold.
	Candidates uint64
	// Accepted is the number of stubs written to output streams.
	Accepted uint64
	// Lost is the number of stubs past the output frame budget.
	Lost uint64
}

// Add returns the field wise sum of two sets of counters.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{
		Input:      s.Input + o.Input,
		Candidates: s.Candidates + o.Candidates,
		Accepted:   s.Accepted + o.Accepted,
		Lost:       s.Lost + o.Lost,
	}
}

// Option configures a Transform.
type Option func(*Transform)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(t *Transform) {
		t.log = log
	}
}

// Transform is the coarse Hough transform of one region.
type Transform struct {
	setup *setup.Setup
	df    *formats.DataFormats
	log   logr.Logger
	stats Statistics
}

// New creates a coarse Hough transform.
func New(df *formats.DataFormats, opts ...Option) *Transform {
	t := &Transform{
		setup: df.Setup(),
		df:    df,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats returns the counters accumulated so far.
func (t *Transform) Stats() Statistics { return t.stats }

type sectorStub struct {
	frame     stream.Frame
	gp        formats.StubGP
	sectorPhi int
	sectorEta int
}

// Process turns the sector streams of one region into one stream per q/pT
// bin. Every stub is written once per q/pT bin it is compatible with.
func (t *Transform) Process(input stream.Streams) (accepted, lost stream.Streams) {
	numChannel := t.df.NumChannel(formats.HT)
	accepted = stream.NewStreams(numChannel)
	lost = stream.NewStreams(numChannel)

	sectors := make([][]sectorStub, len(input))
	for sector, s := range input {
		for _, f := range s {
			if !f.Valid() {
				continue
			}
			sectors[sector] = append(sectors[sector], sectorStub{
				frame:     f,
				gp:        t.df.DecodeGP(f.Bits),
				sectorPhi: sector % t.setup.NumSectorsPhi(),
				sectorEta: sector / t.setup.NumSectorsPhi(),
			})
			t.stats.Input++
		}
	}

	qOverPt := t.df.Format(formats.QoverPt, formats.HT)
	for channel := 0; channel < numChannel; channel++ {
		q := qOverPt.ToSigned(channel)
		out := t.channel(sectors, q)
		accepted[channel], lost[channel] = stream.Truncate(out, t.setup.NumFrames(), t.setup.EnableTruncation())
		t.stats.Accepted += uint64(accepted[channel].Count())
		t.stats.Lost += uint64(lost[channel].Count())
	}

	t.log.V(1).Info("hough transform",
		"input", t.stats.Input, "candidates", t.stats.Candidates, "accepted", t.stats.Accepted, "lost", t.stats.Lost)
	return accepted, lost
}

// channel fills the phiT cells of one q/pT bin sector by sector and emits the
// cells with enough layers in ascending phiT.
func (t *Transform) channel(sectors [][]sectorStub, q int) stream.Stream {
	phiT := t.df.Format(formats.PhiT, formats.HT)
	curvature := t.df.Format(formats.QoverPt, formats.HT).Floating(q)
	numBins := t.setup.HTNumBinsPhiT()

	var out stream.Stream
	for _, stubs := range sectors {
		cells := make([][]formats.StubHT, numBins)
		refs := make([][]*stream.Ref, numBins)
		for _, st := range stubs {
			if q < st.gp.QMin || q > st.gp.QMax {
				continue
			}
			track := st.gp.Phi + curvature*st.gp.R
			if !phiT.InRange(track) {
				continue
			}
			bin := phiT.Integer(track)
			stub, ok := t.df.NewStubHT(st.gp, st.sectorPhi, st.sectorEta, bin, q)
			if !ok {
				continue
			}
			cell := phiT.ToUnsigned(bin)
			cells[cell] = append(cells[cell], stub)
			refs[cell] = append(refs[cell], st.frame.Ref)
		}

		for cell, cellStubs := range cells {
			if countLayers(cellStubs) < t.setup.HTMinLayers() {
				continue
			}
			t.stats.Candidates++
			for i, stub := range cellStubs {
				out = append(out, stream.Frame{Ref: refs[cell][i], Bits: t.df.EncodeHT(stub)})
			}
		}
	}
	return out
}

func countLayers(stubs []formats.StubHT) int {
	var layers uint64
	for _, s := range stubs {
		layers |= 1 << uint(s.Layer)
	}
	return bits.OnesCount64(layers)
}
