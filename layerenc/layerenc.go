// Package layerenc builds the layer encoding table, which lists per
// (eta, z0, cot) bin the detector layers a track of that bin can cross. The
// position of a layer in the list is the layer index used by the Kalman
// filter stages.
package layerenc

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/go-logr/logr"

	"github.com/sarchlab/tfpsim/bitvec"
	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

var (
	// ErrLayerNotEncoded is returned when a layer id is not part of the
	// encoding of a bin.
	ErrLayerNotEncoded = errors.New("layer not encoded")
	// ErrBinOutOfRange is returned for bins outside the table.
	ErrBinOutOfRange = errors.New("bin out of range")
)

// Option configures an Encoding.
type Option func(*Encoding)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Encoding) {
		e.log = log
	}
}

// Encoding is the layer encoding table. It is read only after New and can be
// shared between regions.
type Encoding struct {
	setup *setup.Setup
	log   logr.Logger

	numZ0, numCot int
	layers        [][][][]int // [eta][z0][cot] ascending layer ids
	maybe         [][][][]int
}

// New builds the table from the sensor modules of the Setup behind df.
func New(df *formats.DataFormats, opts ...Option) *Encoding {
	s := df.Setup()
	z0 := df.Format(formats.Z0, formats.KFin)
	cot := df.Format(formats.Cot, formats.KFin)

	e := &Encoding{
		setup:  s,
		log:    logr.Discard(),
		numZ0:  1 << z0.Width(),
		numCot: 1 << cot.Width(),
	}
	for _, opt := range opts {
		opt(e)
	}

	modules := uniqueModules(s.Modules())
	e.layers = make([][][][]int, s.NumSectorsEta())
	e.maybe = make([][][][]int, s.NumSectorsEta())
	bins := 0
	for binEta := range e.layers {
		e.layers[binEta] = make([][][]int, e.numZ0)
		e.maybe[binEta] = make([][][]int, e.numZ0)
		sinh0 := math.Sinh(s.BoundaryEta(binEta))
		sinh1 := math.Sinh(s.BoundaryEta(binEta + 1))
		sectorCot := (sinh1 + sinh0) / 2
		rangeZT := (sinh1 - sinh0) / 2 * s.ChosenRofZ()

		for binZ0 := 0; binZ0 < e.numZ0; binZ0++ {
			e.layers[binEta][binZ0] = make([][]int, e.numCot)
			e.maybe[binEta][binZ0] = make([][]int, e.numCot)
			vZ0 := z0.Floating(z0.ToSigned(binZ0))
			if math.Abs(vZ0) > s.BeamWindowZ()+z0.Base()/2 {
				continue
			}
			for binCot := 0; binCot < e.numCot; binCot++ {
				vCot := cot.Floating(cot.ToSigned(binCot))
				zT := vCot*s.ChosenRofZ() + vZ0
				if math.Abs(zT) > rangeZT+cot.Base()*s.ChosenRofZ()/2 {
					continue
				}
				lo := hits(modules, vZ0-z0.Base()/2, sectorCot+vCot-cot.Base()/2)
				hi := hits(modules, vZ0+z0.Base()/2, sectorCot+vCot+cot.Base()/2)
				e.layers[binEta][binZ0][binCot] = union(lo, hi)
				e.maybe[binEta][binZ0][binCot] = symmetricDifference(lo, hi)
				bins++
			}
		}
	}

	e.log.V(1).Info("layer encoding", "modules", len(modules), "bins", bins)
	return e
}

// uniqueModules orders modules by z, then r, and drops every module at the
// position of the last module kept.
func uniqueModules(all []setup.SensorModule) []*setup.SensorModule {
	modules := make([]*setup.SensorModule, len(all))
	for i := range all {
		modules[i] = &all[i]
	}
	sort.SliceStable(modules, func(i, j int) bool { return modules[i].R < modules[j].R })
	sort.SliceStable(modules, func(i, j int) bool { return modules[i].Z < modules[j].Z })

	var out []*setup.SensorModule
	for _, m := range modules {
		if n := len(out); n > 0 && samePosition(out[n-1], m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func samePosition(a, b *setup.SensorModule) bool {
	return math.Abs(a.R-b.R) < 1e-3 && math.Abs(a.Z-b.Z) < 1e-3
}

// hits returns the ascending ids of the layers crossed by the line
// z = z0 + r*cot within the column extent of a module.
func hits(modules []*setup.SensorModule, z0, cot float64) []int {
	var layers []int
	for _, m := range modules {
		d := (z0 - m.Z + m.R*cot) / (m.Cos - m.Sin*cot)
		if math.Abs(d) < m.Length()/2 {
			layers = append(layers, m.LayerID)
		}
	}
	slices.Sort(layers)
	return slices.Compact(layers)
}

func union(a, b []int) []int {
	out := append(append([]int{}, a...), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func symmetricDifference(a, b []int) []int {
	var out []int
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !slices.Contains(a, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func (e *Encoding) bin(binEta, binZ0, binCot int) (int, int, int, error) {
	if binEta < 0 || binEta >= len(e.layers) || binZ0 < 0 || binZ0 >= e.numZ0 || binCot < 0 || binCot >= e.numCot {
		return 0, 0, 0, fmt.Errorf("%w: eta %d z0 %d cot %d", ErrBinOutOfRange, binEta, binZ0, binCot)
	}
	return binEta, binZ0, binCot, nil
}

// Layers returns the ascending layer ids a track of the bin can cross. Out
// of range bins have no layers.
func (e *Encoding) Layers(binEta, binZ0, binCot int) []int {
	eta, z0, cot, err := e.bin(binEta, binZ0, binCot)
	if err != nil {
		return nil
	}
	return slices.Clone(e.layers[eta][z0][cot])
}

// MaybeLayers returns the layers crossed by only one of the boundary tracks
// of the bin.
func (e *Encoding) MaybeLayers(binEta, binZ0, binCot int) []int {
	eta, z0, cot, err := e.bin(binEta, binZ0, binCot)
	if err != nil {
		return nil
	}
	return slices.Clone(e.maybe[eta][z0][cot])
}

// LayerIDKF maps a physical layer id onto its position in the encoding of a
// bin.
func (e *Encoding) LayerIDKF(binEta, binZ0, binCot, layerID int) (int, error) {
	eta, z0, cot, err := e.bin(binEta, binZ0, binCot)
	if err != nil {
		return 0, err
	}
	layer := slices.Index(e.layers[eta][z0][cot], layerID)
	if layer < 0 {
		return 0, fmt.Errorf("%w: layer %d in bin (%d, %d, %d)", ErrLayerNotEncoded, layerID, binEta, binZ0, binCot)
	}
	return layer, nil
}

// HitPattern sets the encoded position of every given layer id.
func (e *Encoding) HitPattern(binEta, binZ0, binCot int, layerIDs []int) (bitvec.BV, error) {
	pattern := bitvec.New(0, e.setup.NumLayers())
	for _, id := range layerIDs {
		layer, err := e.LayerIDKF(binEta, binZ0, binCot, id)
		if err != nil {
			return pattern, err
		}
		if layer >= e.setup.NumLayers() {
			return pattern, fmt.Errorf("%w: layer %d encoded beyond %d layers", ErrLayerNotEncoded, id, e.setup.NumLayers())
		}
		pattern.Set(layer)
	}
	return pattern, nil
}
