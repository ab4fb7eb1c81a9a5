// Package kfin emulates the Kalman filter input stage, which turns fitted
// linear regression candidates into Kalman filter track and stub streams, and
// provides the combinatorial states the Kalman filter walks through.
package kfin

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
)

// maxStubsPerLayer is the largest stub count a layer map can hold.
const maxStubsPerLayer = 3

// ErrStubsMissing is returned by Unpack when a stub stream ends before the
// layer map of a track is satisfied.
var ErrStubsMissing = errors.New("stubs missing")

// Statistics holds Kalman filter input counters.
type Statistics struct {
	// Candidates is the number of fitted candidates received.
	Candidates uint64
	// Capped is the number of candidates past the per channel track limit.
	Capped uint64
	// Tracks is the number of tracks staged.
	Tracks uint64
	// Stubs is the number of stubs staged.
	Stubs uint64
	// LayerMisses is the number of stubs whose layer is not encoded.
	LayerMisses uint64
	// Overflow is the number of stubs beyond the layer map capacity.
	Overflow uint64
	// LostTracks is the number of tracks past the frame budget.
	LostTracks uint64
	// LostStubs is the number of stubs past the frame budget.
	LostStubs uint64
}

// Add returns the field wise sum of two sets of counters.
func (s Statistics) Add(o Statistics) Statistics {
	return Statistics{
		Candidates:  s.Candidates + o.Candidates,
		Capped:      s.Capped + o.Capped,
		Tracks:      s.Tracks + o.Tracks,
		Stubs:       s.Stubs + o.Stubs,
		LayerMisses: s.LayerMisses + o.LayerMisses,
		Overflow:    s.Overflow + o.Overflow,
		LostTracks:  s.LostTracks + o.LostTracks,
		LostStubs:   s.LostStubs + o.LostStubs,
	}
}

// Option configures a Stager.
type Option func(*Stager)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Stager) {
		s.log = log
	}
}

// Stager is the Kalman filter input stage of one region.
type Stager struct {
	setup *setup.Setup
	df    *formats.DataFormats
	enc   *layerenc.Encoding
	log   logr.Logger
	stats Statistics
}

// New creates a Kalman filter input stage.
func New(df *formats.DataFormats, enc *layerenc.Encoding, opts ...Option) *Stager {
	s := &Stager{
		setup: df.Setup(),
		df:    df,
		enc:   enc,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the counters accumulated so far.
func (s *Stager) Stats() Statistics { return s.stats }

// Output holds the streams of one region. Track streams are indexed by
// sectorPhi, stub streams by sectorPhi*NumLayers + KF layer.
type Output struct {
	AcceptedTracks stream.Streams
	AcceptedStubs  stream.Streams
	LostTracks     stream.Streams
	LostStubs      stream.Streams
}

// Process stages the linear regression streams of one region.
func (s *Stager) Process(stubs, tracks stream.Streams) Output {
	numChannel := s.df.NumChannel(formats.KFin)
	numLayers := s.setup.NumLayers()
	outTracks := stream.NewStreams(numChannel)
	outStubs := stream.NewStreams(numChannel * numLayers)

	for channel := 0; channel < len(tracks) && channel < len(stubs); channel++ {
		staged := 0
		for _, c := range candidates(stubs[channel], tracks[channel]) {
			s.stats.Candidates++
			if staged >= s.setup.SFMaxTracks() {
				s.stats.Capped++
				continue
			}
			if s.stage(c, outTracks, outStubs) {
				staged++
			}
		}
	}

	out := Output{
		AcceptedTracks: stream.NewStreams(numChannel),
		AcceptedStubs:  stream.NewStreams(numChannel * numLayers),
		LostTracks:     stream.NewStreams(numChannel),
		LostStubs:      stream.NewStreams(numChannel * numLayers),
	}
	limit, enabled := s.setup.NumFrames(), s.setup.EnableTruncation()
	for i, st := range outTracks {
		out.AcceptedTracks[i], out.LostTracks[i] = stream.Truncate(st, limit, enabled)
		s.stats.LostTracks += uint64(out.LostTracks[i].Count())
	}
	for i, st := range outStubs {
		out.AcceptedStubs[i], out.LostStubs[i] = stream.Truncate(st, limit, enabled)
		s.stats.LostStubs += uint64(out.LostStubs[i].Count())
	}

	s.log.V(1).Info("kalman filter input",
		"candidates", s.stats.Candidates, "tracks", s.stats.Tracks, "stubs", s.stats.Stubs,
		"layerMisses", s.stats.LayerMisses, "lostTracks", s.stats.LostTracks)
	return out
}

type candidate struct {
	track stream.Frame
	stubs stream.Stream
}

// candidates groups the slots of one channel sharing a track frame.
func candidates(stubs, tracks stream.Stream) []candidate {
	var out []candidate
	for i := 0; i < len(tracks); {
		if !tracks[i].Valid() {
			i++
			continue
		}
		c := candidate{track: tracks[i]}
		for ; i < len(tracks) && tracks[i].Ref == c.track.Ref; i++ {
			if i < len(stubs) && stubs[i].Valid() {
				c.stubs = append(c.stubs, stubs[i])
			}
		}
		out = append(out, c)
	}
	return out
}

// stage converts one candidate and appends its frames. It reports whether a
// track was written.
func (s *Stager) stage(c candidate, tracks, stubs stream.Streams) bool {
	if len(c.stubs) == 0 {
		return false
	}
	numLayers := s.setup.NumLayers()
	first := s.df.DecodeSF(c.stubs[0].Bits)
	z0 := s.df.Format(formats.Z0, formats.KFin)
	cot := s.df.Format(formats.Cot, formats.KFin)
	binEta := first.SectorEta
	binZ0 := z0.ToUnsigned(z0.Integer(first.Z0))
	binCot := cot.ToUnsigned(cot.Integer(first.Cot))

	counts := make([]int, numLayers)
	frames := make([]stream.Stream, numLayers)
	for _, f := range c.stubs {
		sf := s.df.DecodeSF(f.Bits)
		layerID := setup.LayerID(sf.Layer, sf.Barrel)
		layer, err := s.enc.LayerIDKF(binEta, binZ0, binCot, layerID)
		if err == nil && layer >= numLayers {
			err = fmt.Errorf("%w: position %d", layerenc.ErrLayerNotEncoded, layer)
		}
		if err != nil {
			s.stats.LayerMisses++
			s.log.V(2).Info("stub dropped", "id", f.Ref.ID, "layerID", layerID, "err", err.Error())
			continue
		}
		if counts[layer] == maxStubsPerLayer {
			s.stats.Overflow++
			continue
		}
		counts[layer]++
		kfin := formats.StubKFin{Barrel: sf.Barrel, PS: sf.PS, R: sf.R, Phi: sf.Phi, Z: sf.Z, Layer: layer}
		frames[layer] = append(frames[layer], stream.Frame{Ref: f.Ref, Bits: s.df.EncodeKFinStub(kfin)})
	}

	hitPattern := bitvec.New(0, numLayers)
	layerMap := bitvec.New(0, 2*numLayers)
	for layer, n := range counts {
		if n > 0 {
			hitPattern.Set(layer)
		}
		formats.SetLayerCount(&layerMap, layer, n)
	}
	if hitPattern.Count() == 0 {
		return false
	}

	track := formats.TrackKFin{
		HitPattern: hitPattern, LayerMap: layerMap,
		SectorPhi: first.SectorPhi, SectorEta: first.SectorEta,
		PhiT: first.PhiT, QoverPt: first.QoverPt,
		Z0: first.Z0, Cot: first.Cot,
	}
	tracks[first.SectorPhi] = append(tracks[first.SectorPhi], stream.Frame{
		Ref: c.track.Ref, Bits: s.df.EncodeKFinTrack(track),
	})
	for layer, fs := range frames {
		index := first.SectorPhi*numLayers + layer
		stubs[index] = append(stubs[index], fs...)
		s.stats.Stubs += uint64(len(fs))
	}
	s.stats.Tracks++
	return true
}

// Track is a Kalman filter input track with its stubs grouped by KF layer.
type Track struct {
	formats.TrackKFin
	Ref   *stream.Ref
	Stubs [][]formats.StubKFin
}

// HitLayer reports whether the track has stubs on a layer.
func (t *Track) HitLayer(layer int) bool {
	return layer >= 0 && layer < len(t.Stubs) && len(t.Stubs[layer]) > 0
}

// Unpack rebuilds the tracks of one region from Kalman filter input streams,
// using the layer map of every track to read its stubs.
func Unpack(df *formats.DataFormats, tracks, stubs stream.Streams) ([]*Track, error) {
	numLayers := df.Setup().NumLayers()
	var out []*Track
	for channel, s := range tracks {
		next := make([]int, numLayers)
		layerStubs := make([]stream.Stream, numLayers)
		for layer := range layerStubs {
			layerStubs[layer] = stubs[channel*numLayers+layer].Valid()
		}
		for _, f := range s {
			if !f.Valid() {
				continue
			}
			t := &Track{TrackKFin: df.DecodeKFinTrack(f.Bits), Ref: f.Ref, Stubs: make([][]formats.StubKFin, numLayers)}
			for layer := 0; layer < numLayers; layer++ {
				n := formats.LayerCount(t.LayerMap, layer)
				if next[layer]+n > len(layerStubs[layer]) {
					return out, fmt.Errorf("%w: track %d layer %d", ErrStubsMissing, f.Ref.ID, layer)
				}
				for _, sf := range layerStubs[layer][next[layer] : next[layer]+n] {
					t.Stubs[layer] = append(t.Stubs[layer], df.DecodeKFinStub(sf.Bits))
				}
				next[layer] += n
			}
			out = append(out, t)
		}
	}
	return out, nil
}
