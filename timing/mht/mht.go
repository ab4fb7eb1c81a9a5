// Package mht emulates the mini Hough transform, which splits every coarse
// cell into fine cells and balances the resulting candidates over the output
// channels.
package mht

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
)

// Statistics holds mini Hough transform counters.
type Statistics struct {
	// Input is the number of coarse stubs received.
	Input uint64
	// Candidates is the number of coarse candidates processed.
	Candidates uint64
	// Cells is the number of fine cells passing the layer threshold.
	Cells uint64
	// Accepted is the number of fine stubs written to output streams.
	Accepted uint64
	// Lost is the number of fine stubs past the static load balancer budget.
	Lost uint64
}

// Add returns the field wise sum of two sets of counters.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{
		Input:      s.Input + o.Input,
		Candidates: s.Candidates + o.Candidates,
		Cells:      s.Cells + o.Cells,
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

// Transform is the mini Hough transform of one region.
type Transform struct {
	setup *setup.Setup
	df    *formats.DataFormats
	log   logr.Logger
	stats Statistics

	numChannel int // coarse q/pT bins
	numCells   int // fine cells per coarse cell
	numNodes   int
	numDLB     int // channels per load balancer node
}

// New creates a mini Hough transform.
func New(df *formats.DataFormats, opts ...Option) *Transform {
	s := df.Setup()
	t := &Transform{
		setup:      s,
		df:         df,
		log:        logr.Discard(),
		numChannel: s.HTNumBinsQoverPt(),
		numCells:   s.MHTNumCells(),
		numNodes:   s.MHTNumDLBNodes(),
		numDLB:     s.MHTNumDLBChannel(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stats returns the counters accumulated so far.
func (t *Transform) Stats() Statistics { return t.stats }

type stub struct {
	ref  *stream.Ref
	mht  formats.StubMHT
	bits bitvec.BV
	id   uint64
}

func (t *Transform) frame(st *stub) stream.Frame {
	if st == nil {
		return stream.Gap()
	}
	return stream.Frame{Ref: st.ref, Bits: st.bits}
}

// Process refines the coarse streams of one region, one per q/pT bin, into
// the same number of fine streams.
func (t *Transform) Process(input stream.Streams) (accepted, lost stream.Streams) {
	accepted = stream.NewStreams(t.numChannel)
	lost = stream.NewStreams(t.numChannel)

	cells := make([][]*stub, t.numChannel*t.numCells)
	qOverPt := t.df.Format(formats.QoverPt, formats.HT)
	for channel := 0; channel < t.numChannel; channel++ {
		t.fill(input[channel], qOverPt.ToSigned(channel), cells[channel*t.numCells:(channel+1)*t.numCells])
	}

	slb := make([][]*stub, t.numChannel)
	for channel := 0; channel < t.numChannel; channel++ {
		inputs := make([][]*stub, t.numCells)
		for k := range inputs {
			inputs[k] = cells[t.setup.MHTCellStream(channel, k)]
		}
		slb[channel], lost[channel] = t.slb(inputs)
	}

	dlb := make([][]*stub, t.numChannel)
	for node := 0; node < t.numNodes; node++ {
		streams := make([][]*stub, t.numDLB)
		for k := range streams {
			streams[k] = slb[t.setup.MHTNodeInput(node, k)]
		}
		t.dlb(streams)
		copy(dlb[node*t.numDLB:], streams)
	}

	out := make([][]*stub, t.numChannel)
	for node := 0; node < t.numNodes; node++ {
		streams := make([][]*stub, t.numDLB)
		for k := range streams {
			streams[k] = dlb[node+k*t.numNodes]
		}
		t.dlb(streams)
		copy(out[node*t.numDLB:], streams)
	}

	for channel, stubs := range out {
		s := make(stream.Stream, len(stubs))
		for i, st := range stubs {
			s[i] = t.frame(st)
		}
		accepted[channel] = s
		t.stats.Accepted += uint64(s.Count())
	}

	t.log.V(1).Info("mini hough transform",
		"input", t.stats.Input, "cells", t.stats.Cells, "accepted", t.stats.Accepted, "lost", t.stats.Lost)
	return accepted, lost
}
