// Package gp emulates the geometric processor, which routes the stubs of one
// region into its phi/eta sectors.
package gp

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
)

// Statistics holds geometric processor counters.
type Statistics struct {
	// Input is the number of stubs received.
	Input uint64
	// Accepted is the number of stubs written to sector streams.
	Accepted uint64
	// LostInput is the number of sector copies dropped by input link truncation.
	LostInput uint64
	// LostMemory is the number of stubs pushed out of full input FIFOs.
	LostMemory uint64
	// LostOutput is the number of stubs past the output frame budget.
	LostOutput uint64
	// OutOfRange is the number of stubs not representable in a sector frame.
	OutOfRange uint64
}

// Add returns the field wise sum of two sets of counters.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{
		Input:      s.Input + o.Input,
		Accepted:   s.Accepted + o.Accepted,
		LostInput:  s.LostInput + o.LostInput,
		LostMemory: s.LostMemory + o.LostMemory,
		LostOutput: s.LostOutput + o.LostOutput,
		OutOfRange: s.OutOfRange + o.OutOfRange,
	}
}

// Lost returns the total number of stubs routed to lost streams.
func (s Statistics) Lost() uint64 {
	return s.LostInput + s.LostMemory + s.LostOutput
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(p *Processor) {
		p.log = log
	}
}

// Processor is the geometric processor of one region.
type Processor struct {
	setup *setup.Setup
	df    *formats.DataFormats
	log   logr.Logger
	stats Statistics
}

// New creates a geometric processor.
func New(df *formats.DataFormats, opts ...Option) *Processor {
	p := &Processor{
		setup: df.Setup(),
		df:    df,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns the counters accumulated so far.
func (p *Processor) Stats() Statistics { return p.stats }

type stub struct {
	ref      *stream.Ref
	pp       formats.StubPP
	inSector bitvec.BV
}

// Process routes the pp streams of one region, one per input link, into one
// stream per sector. Both outputs are indexed by sector. A stub that does not
// fit the gp frame of a sector it claims leaves a gap in accepted, is counted
// in Statistics.OutOfRange and never appears in lost.
func (p *Processor) Process(input stream.Streams) (accepted, lost stream.Streams) {
	numSectors := p.setup.NumSectors()
	accepted = stream.NewStreams(numSectors)
	lost = stream.NewStreams(numSectors)

	lostStubs := make([][]*stub, numSectors)
	links := make([][]*stub, len(input))
	for channel, s := range input {
		links[channel] = p.consume(s, lostStubs)
	}

	for sector := 0; sector < numSectors; sector++ {
		out, dropped := p.route(links, sector)
		lostStubs[sector] = append(lostStubs[sector], dropped...)
		accepted[sector] = p.toFrames(out, sector, true)
		lost[sector] = p.toFrames(lostStubs[sector], sector, false)
	}

	p.log.V(1).Info("geometric processor",
		"input", p.stats.Input, "accepted", p.stats.Accepted, "lost", p.stats.Lost())
	return accepted, lost
}

// consume decodes one input link and applies the link frame budget. Stubs
// past the budget are lost in every sector they belong to.
func (p *Processor) consume(s stream.Stream, lost [][]*stub) []*stub {
	stubs := make([]*stub, len(s))
	for i, f := range s {
		if !f.Valid() {
			continue
		}
		pp := p.df.DecodePP(f.Bits)
		stubs[i] = &stub{ref: f.Ref, pp: pp, inSector: p.df.InSector(pp)}
		p.stats.Input++
	}

	limit := p.setup.NumFramesIO()
	if !p.setup.EnableTruncation() || len(stubs) <= limit {
		return stubs
	}
	for _, st := range stubs[limit:] {
		if st == nil {
			continue
		}
		for sector := 0; sector < p.setup.NumSectors(); sector++ {
			if st.inSector.Test(sector) {
				lost[sector] = append(lost[sector], st)
				p.stats.LostInput++
			}
		}
	}
	return trim(stubs[:limit])
}

// route emulates the sector merge tick by tick. Each tick every link pushes at
// most one stub into its FIFO and the highest ready link is read out.
func (p *Processor) route(links [][]*stub, sector int) (accepted, lost []*stub) {
	inputs := make([][]*stub, len(links))
	for channel, link := range links {
		masked := make([]*stub, len(link))
		for i, st := range link {
			if st != nil && st.inSector.Test(sector) {
				masked[i] = st
			}
		}
		inputs[channel] = masked
	}
	fifos := make([][]*stub, len(links))
	depth := p.setup.GPDepthMemory()
	truncate := p.setup.EnableTruncation()

	for !allEmpty(inputs) || !allEmpty(fifos) {
		for channel := range inputs {
			st := popFront(&inputs[channel])
			if st == nil {
				continue
			}
			if truncate && len(fifos[channel]) == depth-1 {
				lost = append(lost, popFront(&fifos[channel]))
				p.stats.LostMemory++
			}
			fifos[channel] = append(fifos[channel], st)
		}

		var next *stub
		for channel := len(fifos) - 1; channel >= 0; channel-- {
			if next = popFront(&fifos[channel]); next != nil {
				break
			}
		}
		accepted = append(accepted, next)
	}

	if truncate && len(accepted) > p.setup.NumFrames() {
		for _, st := range accepted[p.setup.NumFrames():] {
			if st != nil {
				lost = append(lost, st)
				p.stats.LostOutput++
			}
		}
		accepted = accepted[:p.setup.NumFrames()]
	}
	return trim(accepted), lost
}

// toFrames converts stubs into gp frames of a sector. Gaps are kept in
// accepted streams and dropped from lost ones.
func (p *Processor) toFrames(stubs []*stub, sector int, keepGaps bool) stream.Stream {
	sectorPhi := sector % p.setup.NumSectorsPhi()
	sectorEta := sector / p.setup.NumSectorsPhi()
	out := make(stream.Stream, 0, len(stubs))
	for _, st := range stubs {
		if st == nil {
			if keepGaps {
				out = append(out, stream.Gap())
			}
			continue
		}
		gp, ok := p.df.NewStubGP(st.pp, sectorPhi, sectorEta)
		if !ok {
			p.stats.OutOfRange++
			p.log.V(2).Info("stub outside sector frame", "sector", sector, "id", st.ref.ID)
			if keepGaps {
				out = append(out, stream.Gap())
			}
			continue
		}
		if keepGaps {
			p.stats.Accepted++
		}
		out = append(out, stream.Frame{Ref: st.ref, Bits: p.df.EncodeGP(gp)})
	}
	if keepGaps {
		return out.TrimTrailingGaps()
	}
	return out
}

func popFront(q *[]*stub) *stub {
	if len(*q) == 0 {
		return nil
	}
	st := (*q)[0]
	*q = (*q)[1:]
	return st
}

func allEmpty(qs [][]*stub) bool {
	for _, q := range qs {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

func trim(stubs []*stub) []*stub {
	end := len(stubs)
	for end > 0 && stubs[end-1] == nil {
		end--
	}
	return stubs[:end]
}
