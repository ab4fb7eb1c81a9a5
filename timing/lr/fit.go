package lr

import (
	"math"
	"math/bits"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

// position is a stub position in the fit frames.
type position struct {
	rPhi, phi float64
	rZ, z     float64
}

type fitStub struct {
	slot int
	sf   formats.StubSF
	pos  position
}

type residual struct {
	phi, z float64
	stub   *fitStub
}

func (r residual) combined() float64 { return r.phi + r.z }

// helix holds the fitted line parameters, relative to the mht cell centre.
type helix struct {
	phiT, qOverPt float64
	zT, cot       float64
}

// fit is the iterative outlier removal of one candidate.
type fit struct {
	setup      *setup.Setup
	stubs      []*fitStub
	helix      helix
	iterations int
}

func newFit(s *setup.Setup) *fit {
	return &fit{setup: s}
}

func (f *fit) add(slot int, sf formats.StubSF) {
	f.stubs = append(f.stubs, &fitStub{
		slot: slot,
		sf:   sf,
		pos: position{
			rPhi: sf.R,
			phi:  sf.Phi,
			rZ:   sf.R + f.setup.ChosenRofPhi() - f.setup.ChosenRofZ(),
			z:    sf.Z,
		},
	})
}

// run iterates fit and outlier removal until the largest residual is small,
// nothing can be removed or the iteration budget is spent.
func (f *fit) run() (helix, bool) {
	if !f.valid() {
		return helix{}, false
	}
	for f.iterations < f.setup.LRNumIterations() {
		f.iterations++
		f.calcHelix()
		largest, found := f.findLargest(f.residuals())
		if !found || largest.combined() < 2 {
			return f.helix, true
		}
		if len(f.stubs) == 4 {
			return helix{}, false
		}
		f.remove(largest.stub)
		if !f.valid() {
			return helix{}, false
		}
	}
	return helix{}, false
}

func (f *fit) valid() bool {
	return f.countLayers(false) >= f.setup.LRMinLayers() &&
		f.countLayers(true) >= f.setup.LRMinLayersPS()
}

func (f *fit) countLayers(onlyPS bool) int {
	var layers uint64
	for _, st := range f.stubs {
		if !onlyPS || st.sf.PS {
			layers |= 1 << uint(st.sf.Layer)
		}
	}
	return bits.OnesCount64(layers)
}

func (f *fit) countPSStubs() int {
	n := 0
	for _, st := range f.stubs {
		if st.sf.PS {
			n++
		}
	}
	return n
}

func (f *fit) layers() [][]*fitStub {
	byLayer := make([][]*fitStub, f.setup.NumLayers())
	for _, st := range f.stubs {
		byLayer[st.sf.Layer] = append(byLayer[st.sf.Layer], st)
	}
	return byLayer
}

// calcHelix fits the per layer midpoints. The r-phi line uses every layer,
// the r-z line only layers with a PS stub.
func (f *fit) calcHelix() {
	var rPhi, phi, rZ, z []float64
	for _, stubs := range f.layers() {
		if len(stubs) == 0 {
			continue
		}
		var lrPhi, lPhi, lrZ, lZ []float64
		for _, st := range stubs {
			lrPhi = append(lrPhi, st.pos.rPhi)
			lPhi = append(lPhi, st.pos.phi)
			if st.sf.PS {
				lrZ = append(lrZ, st.pos.rZ)
				lZ = append(lZ, st.pos.z)
			}
		}
		rPhi = append(rPhi, midpoint(lrPhi))
		phi = append(phi, midpoint(lPhi))
		if len(lrZ) > 0 {
			rZ = append(rZ, midpoint(lrZ))
			z = append(z, midpoint(lZ))
		}
	}

	// phi = phiT - qOverPt*r
	alpha, beta := stat.LinearRegression(rPhi, phi, nil, false)
	f.helix.phiT, f.helix.qOverPt = alpha, -beta
	f.helix.zT, f.helix.cot = stat.LinearRegression(rZ, z, nil, false)
}

func midpoint(v []float64) float64 {
	return (floats.Min(v) + floats.Max(v)) / 2
}

// residuals returns the normalised residuals of all stubs, grouped by layer.
func (f *fit) residuals() [][]residual {
	h := f.helix
	out := make([][]residual, f.setup.NumLayers())
	for layer, stubs := range f.layers() {
		for _, st := range stubs {
			p := st.pos
			res := residual{
				phi:  math.Abs(wrapPhi(p.phi-(h.phiT-h.qOverPt*p.rPhi))) / f.setup.LRResidPhi(),
				z:    math.Abs(p.z - (h.zT + h.cot*p.rZ)),
				stub: st,
			}
			// disk residuals scale with the sector relative slope
			if c := math.Abs(h.cot); !st.sf.Barrel && c > 1e-9 {
				res.z /= c
			}
			if st.sf.PS {
				res.z /= f.setup.LRResidZPS()
			} else {
				res.z /= f.setup.LRResidZ2S()
			}
			out[layer] = append(out[layer], res)
		}
	}
	return out
}

// findLargest returns the largest residual whose stub may be removed without
// breaking the layer requirements.
func (f *fit) findLargest(residuals [][]residual) (residual, bool) {
	numStubs := len(f.stubs)
	numLayers := f.countLayers(false)
	notPurged := numStubs != numLayers
	layerCritical := numLayers == f.setup.LRMinLayers()
	psCritical := f.countLayers(true) == f.setup.LRMinLayersPS()
	critical := numStubs == f.setup.LRMinLayers()
	psStubsCritical := f.countPSStubs() == f.setup.LRMinLayersPS()

	largest := residual{phi: -1, z: -1}
	found := false
	for _, layer := range residuals {
		if len(layer) == 0 {
			continue
		}
		single := len(layer) == 1
		if single && notPurged && layerCritical {
			continue
		}
		for _, res := range layer {
			if res.stub.sf.PS && psCritical && !critical && (psStubsCritical || single) {
				continue
			}
			if res.combined() > largest.combined() {
				largest, found = res, true
			}
		}
	}
	return largest, found
}

func (f *fit) remove(st *fitStub) {
	for i, s := range f.stubs {
		if s == st {
			f.stubs = append(f.stubs[:i], f.stubs[i+1:]...)
			return
		}
	}
}

func wrapPhi(phi float64) float64 {
	return math.Remainder(phi, 2*math.Pi)
}
