// Package sf emulates the seed filter, which fits stub pairs of every mini
// Hough transform candidate with an r-z line and keeps the stubs of the best
// line.
package sf

import (
	"math"
	"math/bits"
	"sort"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/floats"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
)

// Seeding layer pairs, inner layer first, in physical layer ids.
var seedingLayers = [][2]int{{1, 2}, {1, 3}, {2, 3}, {1, 11}, {2, 11}, {1, 12}, {2, 12}, {11, 12}}

// numLayerIDs bounds the physical layer ids.
const numLayerIDs = 16

// Statistics holds seed filter counters.
type Statistics struct {
	// Input is the number of mht stubs received.
	Input uint64
	// Candidates is the number of mht candidates processed.
	Candidates uint64
	// Seeds is the number of stub pairs tried.
	Seeds uint64
	// Rejected is the number of seeds rejected before stub selection.
	Rejected uint64
	// Tracks is the number of candidates with a selected subset.
	Tracks uint64
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
		Seeds:      s.Seeds + o.Seeds,
		Rejected:   s.Rejected + o.Rejected,
		Tracks:     s.Tracks + o.Tracks,
		Accepted:   s.Accepted + o.Accepted,
		Lost:       s.Lost + o.Lost,
	}
}

// Option configures a Filter.
type Option func(*Filter)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(f *Filter) {
		f.log = log
	}
}

// Filter is the seed filter of one region.
type Filter struct {
	setup *setup.Setup
	df    *formats.DataFormats
	log   logr.Logger
	stats Statistics

	z0  formats.Format
	cot formats.Format
}

// New creates a seed filter.
func New(df *formats.DataFormats, opts ...Option) *Filter {
	f := &Filter{
		setup: df.Setup(),
		df:    df,
		log:   logr.Discard(),
		z0:    df.Format(formats.Z0, formats.SF),
		cot:   df.Format(formats.Cot, formats.SF),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stats returns the counters accumulated so far.
func (f *Filter) Stats() Statistics { return f.stats }

type stub struct {
	frame stream.Frame
	mht   formats.StubMHT
}

func (st *stub) layerID() int {
	return setup.LayerID(st.mht.Layer, st.mht.Barrel)
}

func (st *stub) dZ() float64 {
	if st.frame.Ref == nil || st.frame.Ref.Module == nil {
		return 0
	}
	return st.frame.Ref.Module.DZ()
}

type subset struct {
	stubs  []formats.StubSF
	frames []stream.Frame
	chi    float64
	layers int
}

// Process filters the mht streams of one region. Output streams carry the
// selected stubs of each candidate back to back.
func (f *Filter) Process(input stream.Streams) (accepted, lost stream.Streams) {
	numChannel := f.df.NumChannel(formats.MHT)
	accepted = stream.NewStreams(numChannel)
	lost = stream.NewStreams(numChannel)

	for channel := 0; channel < numChannel && channel < len(input); channel++ {
		valid := input[channel].Valid()
		f.stats.Input += uint64(len(valid))
		runs := stream.Runs(valid, func(fr stream.Frame) uint64 {
			return f.df.TrackID(formats.RecordMHT, fr.Bits)
		})

		var out stream.Stream
		for _, run := range runs {
			f.stats.Candidates++
			track := make([]*stub, 0, run.Len())
			for _, fr := range valid[run.Start:run.End] {
				track = append(track, &stub{frame: fr, mht: f.df.DecodeMHT(fr.Bits)})
			}
			best, ok := f.candidate(track)
			if !ok {
				continue
			}
			f.stats.Tracks++
			for i, s := range best.stubs {
				out = append(out, stream.Frame{Ref: best.frames[i].Ref, Bits: f.df.EncodeSF(s)})
			}
		}

		accepted[channel], lost[channel] = stream.Truncate(out, f.setup.NumFrames(), f.setup.EnableTruncation())
		f.stats.Accepted += uint64(accepted[channel].Count())
		f.stats.Lost += uint64(lost[channel].Count())
	}

	f.log.V(1).Info("seed filter",
		"input", f.stats.Input, "tracks", f.stats.Tracks, "accepted", f.stats.Accepted, "lost", f.stats.Lost)
	return accepted, lost
}

// candidate tries every seed of one mht candidate and returns the subset with
// the most layers, ties going to the smallest summed z residual.
func (f *Filter) candidate(track []*stub) (subset, bool) {
	byLayer := make([][]*stub, numLayerIDs)
	for _, st := range track {
		if id := st.layerID(); id > 0 && id < numLayerIDs {
			byLayer[id] = append(byLayer[id], st)
		}
	}

	var subsets []subset
	for _, pair := range seedingLayers {
		for _, inner := range byLayer[pair[0]] {
			for _, outer := range byLayer[pair[1]] {
				if outer.mht.R <= inner.mht.R {
					continue
				}
				f.stats.Seeds++
				if s, ok := f.seed(track, inner, outer); ok {
					subsets = append(subsets, s)
				}
			}
		}
	}
	if len(subsets) == 0 {
		return subset{}, false
	}

	sort.SliceStable(subsets, func(i, j int) bool { return subsets[i].chi < subsets[j].chi })
	sort.SliceStable(subsets, func(i, j int) bool { return subsets[i].layers > subsets[j].layers })
	return subsets[0], true
}

// seed builds the r-z line through two stubs and selects the stubs of the
// candidate compatible with it.
func (f *Filter) seed(track []*stub, inner, outer *stub) (subset, bool) {
	s := f.setup
	r1 := inner.mht.R + s.ChosenRofPhi()
	r2 := outer.mht.R + s.ChosenRofPhi()
	z1, z2 := inner.mht.Z, outer.mht.Z

	cot := f.cot.Digi((z2 - z1) / (r2 - r1))
	z0 := f.z0.Digi((z1+z2)/2 - cot*(r1+r2)/2)
	zT := z0 + cot*s.ChosenRofZ()

	eta := track[0].mht.SectorEta
	dZT := (math.Sinh(s.BoundaryEta(eta+1)) - math.Sinh(s.BoundaryEta(eta))) * s.ChosenRofZ()
	switch {
	case math.Abs(z0) > s.BeamWindowZ(), math.Abs(zT) > dZT/2:
		f.stats.Rejected++
		f.log.V(2).Info("seed rejected", "z0", z0, "zT", zT, "inner", inner.frame.Ref.ID, "outer", outer.frame.Ref.ID)
		return subset{}, false
	case !f.z0.InRange(z0), !f.cot.InRange(cot):
		f.stats.Rejected++
		return subset{}, false
	}

	var (
		out       subset
		residuals []float64
		layers    uint64
	)
	for _, st := range track {
		r := st.mht.R + s.ChosenRofPhi()
		chi := st.mht.Z - (z0 + r*cot)
		window := f.z0.Base() + f.cot.Base()*r + st.dZ()
		if math.Abs(chi) >= window/2 {
			continue
		}
		sf, ok := f.df.NewStubSF(st.mht, z0, cot)
		if !ok {
			continue
		}
		out.stubs = append(out.stubs, sf)
		out.frames = append(out.frames, st.frame)
		residuals = append(residuals, math.Abs(chi))
		layers |= 1 << uint(st.mht.Layer)
	}

	out.layers = bits.OnesCount64(layers)
	if out.layers < s.SFMinLayers() {
		return subset{}, false
	}
	out.chi = floats.Sum(residuals)
	return out, true
}
