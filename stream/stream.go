// Package stream provides the frames and per-channel streams exchanged
// between processing stages.
package stream

import (
	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/setup"
)

// Ref identifies the detector hit a frame was derived from.
type Ref struct {
	ID     int                 // hit number within the event
	Module *setup.SensorModule // module that measured the hit
}

// Frame is one clock tick slot of a stream. A frame without a Ref is a gap.
type Frame struct {
	Ref  *Ref
	Bits bitvec.BV
}

// Gap returns an empty frame.
func Gap() Frame { return Frame{} }

// Valid reports whether the frame carries a stub or track.
func (f Frame) Valid() bool { return f.Ref != nil }

// Stream is the ordered sequence of frames of one channel.
type Stream []Frame

// Streams holds the streams of all channels of all regions, indexed by
// region*numChannel + channel.
type Streams []Stream

// NewStreams allocates n empty streams.
func NewStreams(n int) Streams {
	return make(Streams, n)
}

// Count returns the number of valid frames.
func (s Stream) Count() int {
	n := 0
	for _, f := range s {
		if f.Valid() {
			n++
		}
	}
	return n
}

// TrimTrailingGaps removes gaps from the end of the stream.
func (s Stream) TrimTrailingGaps() Stream {
	end := len(s)
	for end > 0 && !s[end-1].Valid() {
		end--
	}
	return s[:end]
}

// Valid returns the valid frames in order.
func (s Stream) Valid() Stream {
	out := make(Stream, 0, s.Count())
	for _, f := range s {
		if f.Valid() {
			out = append(out, f)
		}
	}
	return out
}

// Truncate splits a stream at limit frames when enabled. Valid frames past
// the limit are returned as lost; gaps past the limit are dropped. With
// truncation disabled every frame is accepted.
func Truncate(s Stream, limit int, enabled bool) (accepted, lost Stream) {
	if !enabled || len(s) <= limit {
		return s, nil
	}
	accepted = s[:limit]
	for _, f := range s[limit:] {
		if f.Valid() {
			lost = append(lost, f)
		}
	}
	return accepted, lost
}

// Count returns the number of valid frames over all streams.
func (s Streams) Count() int {
	n := 0
	for _, st := range s {
		n += st.Count()
	}
	return n
}

// Region returns the streams of one region.
func (s Streams) Region(region, numChannel int) Streams {
	return s[region*numChannel : (region+1)*numChannel]
}
