// Package formats provides the fixed-point format registry and the typed
// stub and track views built on it.
package formats

import (
	"fmt"
	"math"

	"github.com/sarchlab/tfpsim/bitvec"
)

// Process identifies a pipeline stage.
type Process int

// Pipeline stages in processing order.
const (
	DTC Process = iota
	PP
	GP
	HT
	MHT
	SF
	LR
	KFin
	numProcesses
)

// Processes lists all stages in processing order.
var Processes = []Process{DTC, PP, GP, HT, MHT, SF, LR, KFin}

var processNames = [numProcesses]string{"dtc", "pp", "gp", "ht", "mht", "sf", "lr", "kfin"}

func (p Process) String() string {
	if p < 0 || p >= numProcesses {
		return fmt.Sprintf("Process(%d)", int(p))
	}
	return processNames[p]
}

// Variable identifies a physical quantity or bin index carried in a frame.
type Variable int

// Quantities carried in frames.
const (
	R Variable = iota
	Phi
	Z
	Layer
	SectorsPhi
	SectorEta
	SectorPhi
	PhiT
	QoverPt
	ZT
	Cot
	Z0
	Barrel
	PSModule
	HitPattern
	LayerMap
	numVariables
)

// Variables lists all quantities.
var Variables = []Variable{
	R, Phi, Z, Layer, SectorsPhi, SectorEta, SectorPhi, PhiT, QoverPt,
	ZT, Cot, Z0, Barrel, PSModule, HitPattern, LayerMap,
}

var variableNames = [numVariables]string{
	"r", "phi", "z", "layer", "sectorsPhi", "sectorEta", "sectorPhi", "phiT",
	"qOverPt", "zT", "cot", "z0", "barrel", "psModule", "hitPattern", "layerMap",
}

func (v Variable) String() string {
	if v < 0 || v >= numVariables {
		return fmt.Sprintf("Variable(%d)", int(v))
	}
	return variableNames[v]
}

// Format is the fixed-point representation of one quantity at one stage.
type Format struct {
	twos  bool
	width int
	base  float64
	rng   float64
}

// Twos reports whether the format is signed.
func (f Format) Twos() bool { return f.twos }

// Width returns the number of bits.
func (f Format) Width() int { return f.width }

// Base returns the value of one LSB.
func (f Format) Base() float64 { return f.base }

// Range returns the covered value range.
func (f Format) Range() float64 { return f.rng }

// Floating converts an integer to the centre of its bin.
func (f Format) Floating(i int) float64 { return (float64(i) + 0.5) * f.base }

// Integer converts a value to its bin index.
func (f Format) Integer(d float64) int { return int(math.Floor(d / f.base)) }

// Digi quantises a value to the centre of its bin.
func (f Format) Digi(d float64) float64 { return f.Floating(f.Integer(d)) }

// ToSigned maps an unsigned bin index onto the symmetric signed range.
func (f Format) ToSigned(i int) int { return i - f.numBins()/2 }

// ToUnsigned maps a signed bin index onto [0, range/base).
func (f Format) ToUnsigned(i int) int { return i + f.numBins()/2 }

func (f Format) numBins() int { return int(math.Floor(f.rng/f.base + 1e-9)) }

// InRange reports whether d lies in [-range/2, range/2).
func (f Format) InRange(d float64) bool { return d >= -f.rng/2 && d < f.rng/2 }

// InRangeInt reports whether the centre of bin i is in range.
func (f Format) InRangeInt(i int) bool { return f.InRange(f.Floating(i)) }

// BV encodes a bin index into a bit field of the format width.
func (f Format) BV(i int) bitvec.BV { return bitvec.FromInt(i, f.width, f.twos) }

// Int decodes a bit field of the format width into a bin index.
func (f Format) Int(bv bitvec.BV) int { return bv.Int(f.twos) }

func (f Format) String() string {
	return fmt.Sprintf("twos=%t width=%d base=%g range=%g", f.twos, f.width, f.base, f.rng)
}

// ceilLog2 rounds log2(x) up, treating values within rounding noise of a
// power of two as exact.
func ceilLog2(x float64) int {
	l := math.Log2(x)
	if r := math.Round(l); math.Abs(l-r) < 1e-9 {
		return int(r)
	}
	return int(math.Ceil(l))
}
