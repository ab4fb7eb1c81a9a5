package formats

import (
	"fmt"
	"math"

	"github.com/sarchlab/tfpsim/setup"
)

const x = Process(-1) // quantity not carried at this stage

// owners maps each (quantity, stage) cell onto the stage whose format it
// shares.
var owners = [numVariables][numProcesses]Process{
	//          DTC  PP   GP   HT   MHT  SF   LR   KFin
	R:          {HT, HT, HT, HT, HT, HT, HT, HT},
	Phi:        {DTC, DTC, GP, HT, MHT, MHT, MHT, MHT},
	Z:          {DTC, DTC, GP, GP, GP, GP, GP, GP},
	Layer:      {HT, HT, HT, HT, HT, HT, HT, HT},
	SectorsPhi: {DTC, DTC, x, x, x, x, x, x},
	SectorEta:  {GP, GP, GP, GP, GP, GP, GP, GP},
	SectorPhi:  {x, x, GP, GP, GP, GP, GP, GP},
	PhiT:       {HT, HT, HT, HT, MHT, MHT, LR, MHT},
	QoverPt:    {HT, HT, HT, HT, MHT, MHT, LR, MHT},
	ZT:         {x, x, x, x, x, SF, LR, x},
	Cot:        {x, x, x, x, x, SF, LR, SF},
	Z0:         {x, x, x, x, x, SF, x, SF},
	Barrel:     {x, x, x, x, MHT, MHT, MHT, MHT},
	PSModule:   {x, x, x, x, MHT, MHT, MHT, MHT},
	HitPattern: {x, x, x, x, x, x, x, KFin},
	LayerMap:   {x, x, x, x, x, x, x, KFin},
}

type builder struct {
	v     Variable
	p     Process
	build func(df *DataFormats, s *setup.Setup) Format
}

func signed() Format   { return Format{twos: true, base: 1} }
func unsigned() Format { return Format{base: 1} }

// builders are listed in dependency order: every builder only reads formats
// built before it.
var builders = []builder{
	{PhiT, HT, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.rng = s.BaseSector()
		f.base = f.rng / float64(s.HTNumBinsPhiT())
		f.width = ceilLog2(float64(s.HTNumBinsPhiT()))
		return f
	}},
	{QoverPt, HT, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.rng = 2 * s.InvPtToDphi() / s.MinPt()
		f.base = f.rng / float64(s.HTNumBinsQoverPt())
		f.width = ceilLog2(float64(s.HTNumBinsQoverPt()))
		return f
	}},
	{R, HT, func(df *DataFormats, s *setup.Setup) Format {
		phiT, qOverPt := df.owned(PhiT, HT), df.owned(QoverPt, HT)
		f := signed()
		f.width = s.WidthR()
		f.rng = 2 * math.Max(math.Abs(s.OuterRadius()-s.ChosenRofPhi()), math.Abs(s.InnerRadius()-s.ChosenRofPhi()))
		base := phiT.base / qOverPt.base
		shift := ceilLog2(f.rng / base / math.Exp2(float64(f.width)))
		f.base = base * math.Exp2(float64(shift))
		return f
	}},
	{Phi, GP, func(df *DataFormats, s *setup.Setup) Format {
		phiT, qOverPt, r := df.owned(PhiT, HT), df.owned(QoverPt, HT), df.owned(R, HT)
		f := signed()
		f.width = s.WidthPhi()
		f.rng = phiT.rng + qOverPt.rng*r.base*math.Exp2(float64(r.width))/4
		shift := ceilLog2(f.rng / phiT.base / math.Exp2(float64(f.width)))
		f.base = phiT.base * math.Exp2(float64(shift))
		return f
	}},
	{Phi, DTC, func(df *DataFormats, s *setup.Setup) Format {
		qOverPt, r, gp := df.owned(QoverPt, HT), df.owned(R, HT), df.owned(Phi, GP)
		f := signed()
		f.rng = 2*math.Pi/float64(s.NumRegions()) + qOverPt.rng*r.base*math.Exp2(float64(r.width))/4
		f.base = gp.base
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{Z, DTC, func(df *DataFormats, s *setup.Setup) Format {
		r := df.owned(R, HT)
		f := signed()
		f.width = s.WidthZ()
		f.rng = 2 * s.HalfLength()
		shift := ceilLog2(f.rng / r.base / math.Exp2(float64(f.width)))
		f.base = r.base * math.Exp2(float64(shift))
		return f
	}},
	{Z, GP, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.rng = s.NeededRangeChiZ()
		f.base = df.owned(Z, DTC).base
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{Phi, HT, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.rng = 2 * df.owned(PhiT, HT).base
		f.base = df.owned(Phi, GP).base
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{PhiT, MHT, func(df *DataFormats, s *setup.Setup) Format {
		ht := df.owned(PhiT, HT)
		f := signed()
		f.base = ht.base / float64(s.MHTNumBinsPhiT())
		f.rng = ht.rng
		f.width = ceilLog2(float64(s.HTNumBinsPhiT() * s.MHTNumBinsPhiT()))
		return f
	}},
	{QoverPt, MHT, func(df *DataFormats, s *setup.Setup) Format {
		ht := df.owned(QoverPt, HT)
		f := signed()
		f.base = ht.base / float64(s.MHTNumBinsQoverPt())
		f.rng = ht.rng
		f.width = ceilLog2(float64(s.HTNumBinsQoverPt() * s.MHTNumBinsQoverPt()))
		return f
	}},
	{Phi, MHT, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.rng = 2 * df.owned(PhiT, MHT).base
		f.base = df.owned(Phi, HT).base
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{Layer, HT, func(df *DataFormats, s *setup.Setup) Format {
		f := unsigned()
		f.rng = float64(s.NumLayers())
		f.width = ceilLog2(f.rng)
		return f
	}},
	{SectorsPhi, DTC, func(df *DataFormats, s *setup.Setup) Format {
		f := unsigned()
		f.width = s.NumSectorsPhi()
		f.rng = math.Exp2(float64(f.width))
		return f
	}},
	{SectorEta, GP, func(df *DataFormats, s *setup.Setup) Format {
		f := unsigned()
		f.rng = float64(s.NumSectorsEta())
		f.width = ceilLog2(f.rng)
		return f
	}},
	{SectorPhi, GP, func(df *DataFormats, s *setup.Setup) Format {
		f := unsigned()
		f.rng = float64(s.NumSectorsPhi())
		f.width = max(ceilLog2(f.rng), 1)
		return f
	}},
	{Barrel, MHT, func(df *DataFormats, s *setup.Setup) Format {
		return Format{base: 1, width: 1, rng: 2}
	}},
	{PSModule, MHT, func(df *DataFormats, s *setup.Setup) Format {
		return Format{base: 1, width: 1, rng: 2}
	}},
	{Z0, SF, func(df *DataFormats, s *setup.Setup) Format {
		z := df.owned(Z, GP)
		f := signed()
		f.width = s.SFWidthZ0()
		f.rng = 2 * s.BeamWindowZ()
		shift := ceilLog2(f.rng / z.base / math.Exp2(float64(f.width)))
		f.base = z.base * math.Exp2(float64(shift))
		return f
	}},
	{Cot, SF, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.width = s.SFWidthCot()
		f.rng = s.MaxDeltaCot() + 2*s.BeamWindowZ()/s.ChosenRofZ()
		f.base = math.Exp2(float64(ceilLog2(f.rng / math.Exp2(float64(f.width)))))
		return f
	}},
	{ZT, SF, func(df *DataFormats, s *setup.Setup) Format {
		z0, cot := df.owned(Z0, SF), df.owned(Cot, SF)
		f := signed()
		f.base = z0.base
		f.rng = z0.rng + cot.rng*s.ChosenRofZ()
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{PhiT, LR, func(df *DataFormats, s *setup.Setup) Format {
		mht := df.owned(PhiT, MHT)
		f := signed()
		f.rng = 4 * mht.rng
		f.base = mht.base * math.Exp2(float64(s.LRBaseDiffPhiT()))
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{QoverPt, LR, func(df *DataFormats, s *setup.Setup) Format {
		mht := df.owned(QoverPt, MHT)
		f := signed()
		f.rng = 4 * mht.rng
		f.base = mht.base * math.Exp2(float64(s.LRBaseDiffQoverPt()))
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{ZT, LR, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.base = df.owned(Z, GP).base * math.Exp2(float64(s.LRBaseDiffZT()))
		f.rng = s.MaxDeltaCot() * s.ChosenRofZ()
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{Cot, LR, func(df *DataFormats, s *setup.Setup) Format {
		f := signed()
		f.base = math.Exp2(float64(s.LRBaseDiffCot()))
		f.rng = (df.owned(ZT, LR).rng + 2*s.BeamWindowZ()) / s.ChosenRofZ()
		f.width = ceilLog2(f.rng / f.base)
		return f
	}},
	{HitPattern, KFin, func(df *DataFormats, s *setup.Setup) Format {
		f := unsigned()
		f.width = s.NumLayers()
		f.rng = math.Exp2(float64(f.width))
		return f
	}},
	{LayerMap, KFin, func(df *DataFormats, s *setup.Setup) Format {
		f := unsigned()
		f.width = 2 * s.NumLayers()
		f.rng = math.Exp2(float64(f.width))
		return f
	}},
}

// DataFormats is the format registry. It is built once per Setup and is safe
// for concurrent use afterwards.
type DataFormats struct {
	setup      *setup.Setup
	formats    [numVariables][numProcesses]*Format
	numChannel [numProcesses]int
}

// New builds the registry for a Setup.
func New(s *setup.Setup) *DataFormats {
	df := &DataFormats{setup: s}

	for _, b := range builders {
		if owners[b.v][b.p] != b.p {
			panic(fmt.Sprintf("formats: builder for (%s, %s) does not own its cell", b.v, b.p))
		}
		f := b.build(df, s)
		df.formats[b.v][b.p] = &f
	}

	for v := Variable(0); v < numVariables; v++ {
		for p := Process(0); p < numProcesses; p++ {
			owner := owners[v][p]
			if owner == x {
				continue
			}
			f := df.formats[v][owner]
			if f == nil {
				panic(fmt.Sprintf("formats: no format owns (%s, %s)", v, owner))
			}
			df.formats[v][p] = f
		}
	}

	df.numChannel[DTC] = s.NumDTCsPerRegion()
	df.numChannel[PP] = s.NumDTCsPerTFP()
	df.numChannel[GP] = s.NumSectors()
	df.numChannel[HT] = s.HTNumBinsQoverPt()
	df.numChannel[MHT] = s.HTNumBinsQoverPt()
	df.numChannel[SF] = s.HTNumBinsQoverPt()
	df.numChannel[LR] = s.HTNumBinsQoverPt()
	df.numChannel[KFin] = s.NumSectorsPhi()

	return df
}

// owned returns a format during construction.
func (df *DataFormats) owned(v Variable, p Process) Format {
	f := df.formats[v][p]
	if f == nil {
		panic(fmt.Sprintf("formats: (%s, %s) used before it was built", v, p))
	}
	return *f
}

// Setup returns the Setup the registry was built from.
func (df *DataFormats) Setup() *setup.Setup { return df.setup }

// Has reports whether quantity v is carried at stage p.
func (df *DataFormats) Has(v Variable, p Process) bool {
	return v >= 0 && v < numVariables && p >= 0 && p < numProcesses && df.formats[v][p] != nil
}

// Format returns the format of quantity v at stage p. Asking for a quantity
// the stage does not carry is a programming error and panics.
func (df *DataFormats) Format(v Variable, p Process) Format {
	if !df.Has(v, p) {
		panic(fmt.Sprintf("formats: no format for (%s, %s)", v, p))
	}
	return *df.formats[v][p]
}

// Owner returns the stage whose format quantity v uses at stage p.
func (df *DataFormats) Owner(v Variable, p Process) (Process, bool) {
	if !df.Has(v, p) {
		return x, false
	}
	return owners[v][p], true
}

// Width returns the bit width of quantity v at stage p.
func (df *DataFormats) Width(v Variable, p Process) int { return df.Format(v, p).width }

// Base returns the LSB value of quantity v at stage p.
func (df *DataFormats) Base(v Variable, p Process) float64 { return df.Format(v, p).base }

// Range returns the range of quantity v at stage p.
func (df *DataFormats) Range(v Variable, p Process) float64 { return df.Format(v, p).rng }

// NumChannel returns the number of channels per region at stage p.
func (df *DataFormats) NumChannel(p Process) int { return df.numChannel[p] }

// NumStreams returns the number of streams over all regions at stage p.
func (df *DataFormats) NumStreams(p Process) int {
	return df.numChannel[p] * df.setup.NumRegions()
}
