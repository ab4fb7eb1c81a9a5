package formats

import (
	"fmt"

	"github.com/sarchlab/tfpsim/bitvec"
)

// Record identifies a frame layout.
type Record int

// Frame layouts.
const (
	RecordDTC Record = iota
	RecordPP
	RecordGP
	RecordHT
	RecordMHT
	RecordSF
	RecordLR
	RecordKFinStub
	RecordKFinTrack
	numRecords
)

type layout struct {
	name     string
	process  Process
	fields   []Variable // most significant first
	idFields int        // trailing fields forming the track id
}

var layouts = [numRecords]layout{
	RecordDTC:       {"dtc", DTC, []Variable{R, Phi, Z, Layer, SectorsPhi, SectorEta, SectorEta, QoverPt, QoverPt}, 0},
	RecordPP:        {"pp", PP, []Variable{R, Phi, Z, Layer, SectorsPhi, SectorEta, SectorEta, QoverPt, QoverPt}, 0},
	RecordGP:        {"gp", GP, []Variable{R, Phi, Z, Layer, QoverPt, QoverPt}, 0},
	RecordHT:        {"ht", HT, []Variable{R, Phi, Z, Layer, SectorPhi, SectorEta, PhiT}, 3},
	RecordMHT:       {"mht", MHT, []Variable{Barrel, PSModule, R, Phi, Z, Layer, SectorPhi, SectorEta, PhiT, QoverPt}, 4},
	RecordSF:        {"sf", SF, []Variable{Barrel, PSModule, R, Phi, Z, Layer, SectorPhi, SectorEta, PhiT, QoverPt, Z0, Cot}, 6},
	RecordLR:        {"lr", LR, []Variable{PhiT, QoverPt, ZT, Cot}, 0},
	RecordKFinStub:  {"kfin stub", KFin, []Variable{Barrel, PSModule, R, Phi, Z, Layer}, 0},
	RecordKFinTrack: {"kfin track", KFin, []Variable{HitPattern, LayerMap, SectorPhi, SectorEta, PhiT, QoverPt, Z0, Cot}, 6},
}

func (r Record) String() string {
	if r < 0 || r >= numRecords {
		return fmt.Sprintf("Record(%d)", int(r))
	}
	return layouts[r].name
}

// Process returns the stage whose formats the record uses.
func (r Record) Process() Process { return layouts[r].process }

// Fields returns the record fields, most significant first.
func (r Record) Fields() []Variable {
	return append([]Variable(nil), layouts[r].fields...)
}

// RecordWidth returns the number of bits of a record.
func (df *DataFormats) RecordWidth(rec Record) int {
	l := layouts[rec]
	w := 0
	for _, v := range l.fields {
		w += df.Format(v, l.process).width
	}
	return w
}

// IDWidth returns the number of low bits forming the track id of a record.
func (df *DataFormats) IDWidth(rec Record) int {
	l := layouts[rec]
	w := 0
	for _, v := range l.fields[len(l.fields)-l.idFields:] {
		w += df.Format(v, l.process).width
	}
	return w
}

// TrackID returns the track id carried in the low bits of a frame.
func (df *DataFormats) TrackID(rec Record, bv bitvec.BV) uint64 {
	return bv.Low(df.IDWidth(rec)).Uint64()
}

// Attach packs field values into a frame, first field most significant. A
// value may be an int bin, a float64 quantised with the field format, a bool
// or a bitvec.BV of the field width.
func (df *DataFormats) Attach(rec Record, vals ...any) bitvec.BV {
	l := layouts[rec]
	if len(vals) != len(l.fields) {
		panic(fmt.Sprintf("formats: %s record takes %d fields, got %d", rec, len(l.fields), len(vals)))
	}
	var bv bitvec.BV
	for i, v := range l.fields {
		f := df.Format(v, l.process)
		switch val := vals[i].(type) {
		case int:
			bv.Attach(f.BV(val))
		case float64:
			bv.Attach(f.BV(f.Integer(val)))
		case bool:
			b := 0
			if val {
				b = 1
			}
			bv.Attach(f.BV(b))
		case bitvec.BV:
			bv.Attach(val.Resize(f.width))
		default:
			panic(fmt.Sprintf("formats: unsupported %s field value %T", v, vals[i]))
		}
	}
	return bv
}

// Extract unpacks a frame into field pointers in record order. A pointer may
// be *int for the bin, *float64 for the bin centre, *bool or *bitvec.BV.
func (df *DataFormats) Extract(rec Record, frame bitvec.BV, ptrs ...any) {
	l := layouts[rec]
	if len(ptrs) != len(l.fields) {
		panic(fmt.Sprintf("formats: %s record has %d fields, got %d targets", rec, len(l.fields), len(ptrs)))
	}
	for i := len(l.fields) - 1; i >= 0; i-- {
		f := df.Format(l.fields[i], l.process)
		bits := frame.Pop(f.width)
		switch p := ptrs[i].(type) {
		case *int:
			*p = f.Int(bits)
		case *float64:
			*p = f.Floating(f.Int(bits))
		case *bool:
			*p = bits.Uint64() != 0
		case *bitvec.BV:
			*p = bits
		case nil:
		default:
			panic(fmt.Sprintf("formats: unsupported %s field target %T", l.fields[i], ptrs[i]))
		}
	}
}
