// Package lr emulates the linear regression, which fits every seed filter
// candidate with straight lines in r-phi and r-z and removes outlier stubs.
package lr

import (
	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
)

// Statistics holds linear regression counters.
type Statistics struct {
	// Input is the number of sf stubs received.
	Input uint64
	// Candidates is the number of sf candidates processed.
	Candidates uint64
	// Fitted is the number of candidates with a successful fit.
	Fitted uint64
	// Failed is the number of candidates rejected by the fit.
	Failed uint64
	// Dropped is the number of outlier stubs removed from fitted candidates.
	Dropped uint64
	// Iterations is the number of fit iterations over all candidates.
	Iterations uint64
}

// Add returns the field wise sum of two sets of counters.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{
		Input:      s.Input + o.Input,
		Candidates: s.Candidates + o.Candidates,
		Fitted:     s.Fitted + o.Fitted,
		Failed:     s.Failed + o.Failed,
		Dropped:    s.Dropped + o.Dropped,
		Iterations: s.Iterations + o.Iterations,
	}
}

// Option configures a Regression.
type Option func(*Regression)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(r *Regression) {
		r.log = log
	}
}

// Regression is the linear regression of one region.
type Regression struct {
	setup *setup.Setup
	df    *formats.DataFormats
	log   logr.Logger
	stats Statistics
}

// New creates a linear regression.
func New(df *formats.DataFormats, opts ...Option) *Regression {
	r := &Regression{
		setup: df.Setup(),
		df:    df,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the counters accumulated so far.
func (r *Regression) Stats() Statistics { return r.stats }

// Process fits the sf streams of one region. Both outputs are slot aligned
// with the input. The stubs streams carry the surviving sf frames and the
// tracks streams carry the lr track of a fitted candidate at every slot of
// the candidate. All slots of one candidate share one track Ref, so
// consecutive candidates can be told apart by Ref identity.
func (r *Regression) Process(input stream.Streams) (stubs, tracks stream.Streams) {
	numChannel := r.df.NumChannel(formats.LR)
	stubs = stream.NewStreams(numChannel)
	tracks = stream.NewStreams(numChannel)

	for channel := 0; channel < numChannel && channel < len(input); channel++ {
		s := input[channel]
		outStubs := make(stream.Stream, 0, len(s))
		outTracks := make(stream.Stream, 0, len(s))

		for i := 0; i < len(s); {
			if !s[i].Valid() {
				outStubs = append(outStubs, stream.Gap())
				outTracks = append(outTracks, stream.Gap())
				i++
				continue
			}
			id := r.df.TrackID(formats.RecordSF, s[i].Bits)
			end := i
			for end < len(s) && s[end].Valid() && r.df.TrackID(formats.RecordSF, s[end].Bits) == id {
				end++
			}

			kept, track, ok := r.candidate(s[i:end])
			for k, f := range s[i:end] {
				if ok && kept[k] {
					outStubs = append(outStubs, f)
				} else {
					outStubs = append(outStubs, stream.Gap())
				}
				outTracks = append(outTracks, track)
			}
			i = end
		}

		stubs[channel] = outStubs
		tracks[channel] = outTracks
	}

	r.log.V(1).Info("linear regression",
		"input", r.stats.Input, "fitted", r.stats.Fitted, "failed", r.stats.Failed, "dropped", r.stats.Dropped)
	return stubs, tracks
}

// candidate fits one sf candidate. It reports which stubs survived and the
// track frame, a gap on failure.
func (r *Regression) candidate(frames stream.Stream) ([]bool, stream.Frame, bool) {
	r.stats.Candidates++
	r.stats.Input += uint64(len(frames))

	f := newFit(r.setup)
	for k, fr := range frames {
		f.add(k, r.df.DecodeSF(fr.Bits))
	}

	res, ok := f.run()
	r.stats.Iterations += uint64(f.iterations)
	if !ok {
		r.stats.Failed++
		r.log.V(2).Info("fit failed", "id", frames[0].Ref.ID, "stubs", len(frames), "iterations", f.iterations)
		return nil, stream.Gap(), false
	}

	first := f.stubs[0].sf
	phiT := r.df.Format(formats.PhiT, formats.MHT).Floating(first.PhiT) + res.phiT
	qOverPt := r.df.Format(formats.QoverPt, formats.MHT).Floating(first.QoverPt) + res.qOverPt
	track, ok := r.df.NewTrackLR(phiT, qOverPt, res.zT, res.cot)
	if !ok {
		r.stats.Failed++
		r.log.V(2).Info("fit outside lr formats", "id", frames[0].Ref.ID,
			"phiT", phiT, "qOverPt", qOverPt, "zT", res.zT, "cot", res.cot)
		return nil, stream.Gap(), false
	}

	kept := make([]bool, len(frames))
	for _, st := range f.stubs {
		kept[st.slot] = true
	}
	r.stats.Fitted++
	r.stats.Dropped += uint64(len(frames) - len(f.stubs))

	ref := &stream.Ref{ID: frames[0].Ref.ID}
	return kept, stream.Frame{Ref: ref, Bits: r.df.EncodeLR(track)}, true
}
