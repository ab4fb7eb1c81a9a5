package setup

import (
	"fmt"
	"math"

	"github.com/sarchlab/akita/v4/sim"
)

// speedOfLight in m/s.
const speedOfLight = 2.99792458e8

// Setup is the immutable geometry and configuration service. It is built once
// per configuration and shared read-only by all regions and stages.
type Setup struct {
	cfg     Config
	modules []SensorModule

	numSectorsEta   int
	baseSector      float64
	invPtToDphi     float64
	numFrames       int
	numFramesIO     int
	neededRangeChiZ float64
	maxDeltaCot     float64
}

// New validates the configuration and derives a Setup from it.
func New(cfg *Config) (*Setup, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := cfg.Clone()
	s := &Setup{cfg: *c}
	s.modules = c.Modules
	if len(s.modules) == 0 {
		s.modules = DefaultModules()
	}

	s.numSectorsEta = len(c.BoundariesEta) - 1
	s.baseSector = 2 * math.Pi / float64(c.NumRegions*c.NumSectorsPhi)
	s.invPtToDphi = c.BField * speedOfLight / 2e11

	lhc := s.FreqLHC()
	s.numFrames = int(math.Floor(float64(c.TMPTFP)*float64(s.FreqBE()/lhc))) - c.NumFramesInfra
	s.numFramesIO = int(math.Floor(float64(c.TMPTFP)*float64(s.FreqIO()/lhc))) - c.NumFramesInfra
	if s.numFrames <= 0 || s.numFramesIO <= 0 {
		return nil, invalid("clock settings leave no frames per time multiplexed period")
	}

	for eta := 0; eta < s.numSectorsEta; eta++ {
		d := math.Sinh(c.BoundariesEta[eta+1]) - math.Sinh(c.BoundariesEta[eta])
		s.maxDeltaCot = math.Max(s.maxDeltaCot, d)
	}
	s.neededRangeChiZ = 2*c.BeamWindowZ + c.OuterRadius*s.maxDeltaCot

	for i := range s.modules {
		if s.modules[i].ID != i {
			return nil, fmt.Errorf("%w: module %d carries id %d", ErrInvalidConfig, i, s.modules[i].ID)
		}
	}

	return s, nil
}

// MustNew is New for configurations known to be valid, such as the default.
func MustNew(cfg *Config) *Setup {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Config returns a copy of the configuration the Setup was built from.
func (s *Setup) Config() *Config { return s.cfg.Clone() }

// FreqLHC returns the bunch crossing frequency.
func (s *Setup) FreqLHC() sim.Freq { return sim.Freq(s.cfg.FreqLHCMHz) * sim.MHz }

// FreqBE returns the processing clock of the back end boards.
func (s *Setup) FreqBE() sim.Freq { return sim.Freq(s.cfg.FreqBEMHz) * sim.MHz }

// FreqIO returns the clock of the optical input links.
func (s *Setup) FreqIO() sim.Freq { return sim.Freq(s.cfg.FreqIOMHz) * sim.MHz }

// NumFrames returns the number of payload frames per time multiplexed period.
func (s *Setup) NumFrames() int { return s.numFrames }

// NumFramesIO returns the number of payload frames on the input links.
func (s *Setup) NumFramesIO() int { return s.numFramesIO }

// NumFramesInfra returns the number of link infrastructure frames.
func (s *Setup) NumFramesInfra() int { return s.cfg.NumFramesInfra }

// EnableTruncation reports whether buffer and link limits are emulated.
func (s *Setup) EnableTruncation() bool { return s.cfg.EnableTruncation }

// Geometry.

func (s *Setup) NumRegions() int { return s.cfg.NumRegions }
func (s *Setup) NumSectorsPhi() int { return s.cfg.NumSectorsPhi }
func (s *Setup) NumSectorsEta() int { return s.numSectorsEta }
func (s *Setup) NumSectors() int { return s.cfg.NumSectorsPhi * s.numSectorsEta }
func (s *Setup) NumLayers() int { return s.cfg.NumLayers }
func (s *Setup) ChosenRofPhi() float64 { return s.cfg.ChosenRofPhi }
func (s *Setup) ChosenRofZ() float64 { return s.cfg.ChosenRofZ }
func (s *Setup) BeamWindowZ() float64 { return s.cfg.BeamWindowZ }
func (s *Setup) HalfLength() float64 { return s.cfg.HalfLength }
func (s *Setup) InnerRadius() float64 { return s.cfg.InnerRadius }
func (s *Setup) OuterRadius() float64 { return s.cfg.OuterRadius }
func (s *Setup) MinPt() float64 { return s.cfg.MinPt }

// NumDTCsPerRegion returns the number of DTC boards reading out one region.
func (s *Setup) NumDTCsPerRegion() int { return s.cfg.NumDTCsPerRegion }

// NumDTCsPerTFP returns the number of DTC links entering one processor.
func (s *Setup) NumDTCsPerTFP() int {
	return s.cfg.NumDTCsPerRegion * s.cfg.NumOverlappingRegions
}

// BaseSector returns the phi width of one phi sector.
func (s *Setup) BaseSector() float64 { return s.baseSector }

// BoundaryEta returns the lower eta boundary of eta sector i. Index
// NumSectorsEta() returns the upper boundary of the last sector.
func (s *Setup) BoundaryEta(i int) float64 { return s.cfg.BoundariesEta[i] }

// SectorCot returns the cot(theta) of the centre line of an eta sector.
func (s *Setup) SectorCot(eta int) float64 {
	return (math.Sinh(s.cfg.BoundariesEta[eta+1]) + math.Sinh(s.cfg.BoundariesEta[eta])) / 2
}

// DeltaCot returns the cot(theta) width of an eta sector.
func (s *Setup) DeltaCot(eta int) float64 {
	return math.Sinh(s.cfg.BoundariesEta[eta+1]) - math.Sinh(s.cfg.BoundariesEta[eta])
}

// MaxDeltaCot returns the widest eta sector in cot(theta).
func (s *Setup) MaxDeltaCot() float64 { return s.maxDeltaCot }

// InvPtToDphi converts q/pT in 1/GeV into the phi curvature in rad/cm.
func (s *Setup) InvPtToDphi() float64 { return s.invPtToDphi }

// NeededRangeChiZ returns the z range of stubs relative to their eta sector
// centre line.
func (s *Setup) NeededRangeChiZ() float64 { return s.neededRangeChiZ }

// Modules returns the sensor modules. The slice must not be modified.
func (s *Setup) Modules() []SensorModule { return s.modules }

// Module returns the sensor module with the given id.
func (s *Setup) Module(id int) (*SensorModule, bool) {
	if id < 0 || id >= len(s.modules) {
		return nil, false
	}
	return &s.modules[id], true
}

// Widths.

func (s *Setup) WidthR() int { return s.cfg.WidthR }
func (s *Setup) WidthPhi() int { return s.cfg.WidthPhi }
func (s *Setup) WidthZ() int { return s.cfg.WidthZ }

// Hough transform.

func (s *Setup) HTNumBinsQoverPt() int { return s.cfg.HTNumBinsQoverPt }
func (s *Setup) HTNumBinsPhiT() int { return s.cfg.HTNumBinsPhiT }
func (s *Setup) HTMinLayers() int { return s.cfg.HTMinLayers }

// Mini Hough transform.

func (s *Setup) MHTNumBinsQoverPt() int { return s.cfg.MHTNumBinsQoverPt }
func (s *Setup) MHTNumBinsPhiT() int { return s.cfg.MHTNumBinsPhiT }
func (s *Setup) MHTNumCells() int { return s.cfg.MHTNumBinsQoverPt * s.cfg.MHTNumBinsPhiT }
func (s *Setup) MHTNumDLBs() int { return s.cfg.MHTNumDLBs }
func (s *Setup) MHTNumDLBNodes() int { return s.cfg.MHTNumDLBNodes }
func (s *Setup) MHTNumDLBChannel() int { return s.cfg.MHTNumDLBChannel }
func (s *Setup) MHTMinLayers() int { return s.cfg.MHTMinLayers }

// MHTCellStream returns the fine cell stream read by input k of the static
// load balancer of channel. Cell streams are numbered channel*MHTNumCells +
// cell.
func (s *Setup) MHTCellStream(channel, k int) int {
	return mhtCellStream(s.cfg.HTNumBinsQoverPt, s.MHTNumCells(), channel, k)
}

// MHTNodeInput returns the static load balancer channel read by input k of a
// first stage dynamic load balancer node.
func (s *Setup) MHTNodeInput(node, k int) int {
	return mhtNodeInput(s.cfg.MHTNumDLBNodes, s.MHTNumCells(), node, k)
}

func mhtCellStream(numChannel, numCells, channel, k int) int {
	return (channel/numCells)*numChannel + channel%numCells + k*numCells
}

func mhtNodeInput(numNodes, numCells, node, k int) int {
	return (node/numCells)*numNodes + node%numCells + k*numCells
}

// GPDepthMemory returns the depth of the geometric processor input FIFOs.
func (s *Setup) GPDepthMemory() int { return s.cfg.GPDepthMemory }

// Seed filter.

func (s *Setup) SFMinLayers() int { return s.cfg.SFMinLayers }
func (s *Setup) SFMaxTracks() int { return s.cfg.SFMaxTracks }
func (s *Setup) SFWidthZ0() int { return s.cfg.SFWidthZ0 }
func (s *Setup) SFWidthCot() int { return s.cfg.SFWidthCot }

// Linear regression.

func (s *Setup) LRMinLayers() int { return s.cfg.LRMinLayers }
func (s *Setup) LRMinLayersPS() int { return s.cfg.LRMinLayersPS }
func (s *Setup) LRNumIterations() int { return s.cfg.LRNumIterations }
func (s *Setup) LRResidPhi() float64 { return s.cfg.LRResidPhi }
func (s *Setup) LRResidZPS() float64 { return s.cfg.LRResidZPS }
func (s *Setup) LRResidZ2S() float64 { return s.cfg.LRResidZ2S }
func (s *Setup) LRBaseDiffPhiT() int { return s.cfg.LRBaseDiffPhiT }
func (s *Setup) LRBaseDiffQoverPt() int { return s.cfg.LRBaseDiffQoverPt }
func (s *Setup) LRBaseDiffZT() int { return s.cfg.LRBaseDiffZT }
func (s *Setup) LRBaseDiffCot() int { return s.cfg.LRBaseDiffCot }

// KF returns the Kalman filter settings.
func (s *Setup) KF() KFConfig { return s.cfg.KF }
