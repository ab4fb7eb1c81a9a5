package kfin

import (
	"math"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

// noStub marks a state without a stub to add.
const noStub = -1

// Params holds updated helix parameters and uncertainties.
type Params struct {
	X0, X1, X2, X3               float64
	C00, C01, C11, C22, C23, C33 float64
	Chi20, Chi21                 float64
}

// State is one node of the combinatorial Kalman filter tree. States live in
// a States arena and refer to each other by index.
type State struct {
	states *States

	Track  *Track
	Parent int // -1 for proto states

	// Layer and StubIndex select the stub to add next. Layer is -1 when the
	// state is complete.
	Layer     int
	StubIndex int

	HitPattern bitvec.BV
	LayerMap   []int // stub index used per layer

	X0, X1, X2, X3               float64
	C00, C01, C11, C22, C23, C33 float64
	Chi20, Chi21                 float64
}

// States is an arena of states sharing one registry.
type States struct {
	kf     *formats.KalmanFilterFormats
	setup  *setup.Setup
	states []*State
}

// NewStates creates an empty arena.
func NewStates(kf *formats.KalmanFilterFormats) *States {
	return &States{kf: kf, setup: kf.Setup()}
}

// Len returns the number of states in the arena.
func (ss *States) Len() int { return len(ss.states) }

// Get returns the state at index i.
func (ss *States) Get(i int) *State { return ss.states[i] }

func (ss *States) add(s *State) int {
	s.states = ss
	ss.states = append(ss.states, s)
	return len(ss.states) - 1
}

func (s *State) clone() *State {
	c := *s
	c.HitPattern = s.HitPattern
	c.LayerMap = append([]int(nil), s.LayerMap...)
	return &c
}

// Proto creates the root state of a track. Its stub is the first stub on the
// lowest hit layer.
func (ss *States) Proto(track *Track) int {
	df := ss.kf.DataFormats()
	s := &State{
		Track:      track,
		Parent:     -1,
		Layer:      noStub,
		HitPattern: bitvec.New(0, ss.setup.NumLayers()),
		LayerMap:   make([]int, ss.setup.NumLayers()),
		C00:        math.Pow(df.Base(formats.QoverPt, formats.SF), 2),
		C11:        math.Pow(df.Base(formats.PhiT, formats.SF), 2),
		C22:        math.Pow(df.Base(formats.Cot, formats.SF), 2),
		C33:        math.Pow(df.Base(formats.ZT, formats.SF), 2),
	}
	for layer := 0; layer < len(track.Stubs); layer++ {
		if track.HitLayer(layer) {
			s.Layer = layer
			break
		}
	}
	return ss.add(s)
}

// Comb creates a sibling of a state adding another stub of the same layer.
func (ss *States) Comb(state, stubIndex int) int {
	s := ss.states[state].clone()
	s.StubIndex = stubIndex
	return ss.add(s)
}

// Update creates the child of a state after adding its stub.
func (ss *States) Update(state int, p Params) int {
	parent := ss.states[state]
	s := parent.clone()
	s.Parent = state

	s.X0 = ss.kf.Digi(formats.X0, p.X0)
	s.X1 = ss.kf.Digi(formats.X1, p.X1)
	s.X2 = ss.kf.Digi(formats.X2, p.X2)
	s.X3 = ss.kf.Digi(formats.X3, p.X3)
	s.C00 = ss.kf.Digi(formats.C00, p.C00)
	s.C01 = ss.kf.Digi(formats.C01, p.C01)
	s.C11 = ss.kf.Digi(formats.C11, p.C11)
	s.C22 = ss.kf.Digi(formats.C22, p.C22)
	s.C23 = ss.kf.Digi(formats.C23, p.C23)
	s.C33 = ss.kf.Digi(formats.C33, p.C33)
	s.Chi20 = ss.kf.Digi(formats.Chi20, p.Chi20)
	s.Chi21 = ss.kf.Digi(formats.Chi21, p.Chi21)

	layer := parent.Layer
	s.HitPattern.Set(layer)
	s.LayerMap[layer] = parent.StubIndex

	s.Layer, s.StubIndex = noStub, 0
	if s.HitPattern.Count() != ss.setup.KF().MaxLayers {
		for next := layer + 1; next < len(s.Track.Stubs); next++ {
			if s.Track.HitLayer(next) {
				s.Layer = next
				break
			}
		}
	}
	return ss.add(s)
}

// Stub returns the stub to add next.
func (s *State) Stub() (formats.StubKFin, bool) {
	if s.Layer == noStub {
		return formats.StubKFin{}, false
	}
	return s.Track.Stubs[s.Layer][s.StubIndex], true
}

// NextStubOnLayer selects the next stub on the current layer. It reports
// false when there is none.
func (s *State) NextStubOnLayer() bool {
	if s.Layer == noStub || s.StubIndex+1 >= len(s.Track.Stubs[s.Layer]) {
		return false
	}
	s.StubIndex++
	return true
}

// SkipLayer selects the first stub of the next hit layer. It reports false
// when skipping would leave too few reachable layers or skip too many.
func (s *State) SkipLayer() bool {
	if s.Layer == noStub {
		return false
	}
	cfg := s.states.setup.KF()
	next := noStub
	for layer := s.Layer + 1; layer < len(s.Track.Stubs); layer++ {
		if s.Track.HitLayer(layer) {
			next = layer
			break
		}
	}
	if next == noStub {
		return false
	}

	skipped, reachable := 0, s.HitPattern.Count()
	for layer := 0; layer < len(s.Track.Stubs); layer++ {
		if !s.Track.HitLayer(layer) {
			continue
		}
		switch {
		case layer < next && !s.HitPattern.Test(layer):
			skipped++
		case layer >= next:
			reachable++
		}
	}
	if skipped > cfg.MaxSkippedLayers || reachable < cfg.MinLayers {
		return false
	}
	s.Layer, s.StubIndex = next, 0
	return true
}

// H00 is the phi measurement derivative of the stub.
func (s *State) H00() float64 {
	st, _ := s.Stub()
	return s.states.setup.ChosenRofPhi() - st.R
}

// H12 is the z measurement derivative of the stub.
func (s *State) H12() float64 {
	st, _ := s.Stub()
	return (st.R - s.states.setup.ChosenRofPhi()) / s.states.setup.ChosenRofZ()
}

// Cot returns the cotangent of the polar angle residual.
func (s *State) Cot() float64 {
	return (s.X2 - s.X3) / s.states.setup.ChosenRofZ()
}

// Phi0 returns the azimuth residual at the beam line.
func (s *State) Phi0() float64 {
	return s.X1 + s.X0*s.states.setup.ChosenRofPhi()
}

// Chi2 returns the summed chi2 of both projections.
func (s *State) Chi2() float64 { return s.Chi20 + s.Chi21 }

// Quali ranks states, penalising every layer missed below the highest layer
// added.
func (s *State) Quali() float64 {
	missing := s.HitPattern.CountRange(0, s.HitPattern.PMEncode(true), false)
	return (s.Chi20/8 + s.Chi21) * math.Exp2(float64(missing))
}

// Combinations returns the arena indices of every complete state of a track:
// one stub per hit layer, possibly skipping layers, up to KF max layers.
// Parameters are carried over unchanged.
func (ss *States) Combinations(track *Track) []int {
	var leaves []int
	var walk func(state int)
	walk = func(state int) {
		s := ss.states[state]
		if s.Layer == noStub {
			if s.HitPattern.Count() >= ss.setup.KF().MinLayers {
				leaves = append(leaves, state)
			}
			return
		}

		for i := range s.Track.Stubs[s.Layer] {
			comb := state
			if i > 0 {
				comb = ss.Comb(state, i)
			}
			c := ss.states[comb]
			walk(ss.Update(comb, Params{
				X0: c.X0, X1: c.X1, X2: c.X2, X3: c.X3,
				C00: c.C00, C01: c.C01, C11: c.C11, C22: c.C22, C23: c.C23, C33: c.C33,
				Chi20: c.Chi20, Chi21: c.Chi21,
			}))
		}

		skip := ss.states[state].clone()
		if skip.SkipLayer() {
			walk(ss.add(skip))
		}
	}
	walk(ss.Proto(track))
	return leaves
}
