package formats

import (
	"github.com/sarchlab/tfpsim/bitvec"
)

// StubPP is a stub as delivered to the geometric processor. R is measured
// relative to the chosen radius, Phi relative to the region centre.
type StubPP struct {
	R, Phi, Z      float64
	Layer          int
	SectorsPhi     bitvec.BV // phi sectors the stub may belong to
	EtaMin, EtaMax int       // inclusive eta sector range
	QMin, QMax     int       // inclusive signed q/pT bin range
}

// DecodePP reads a pp frame.
func (df *DataFormats) DecodePP(bv bitvec.BV) StubPP {
	var s StubPP
	df.Extract(RecordPP, bv, &s.R, &s.Phi, &s.Z, &s.Layer, &s.SectorsPhi,
		&s.EtaMin, &s.EtaMax, &s.QMin, &s.QMax)
	return s
}

// EncodePP writes a pp frame.
func (df *DataFormats) EncodePP(s StubPP) bitvec.BV {
	return df.Attach(RecordPP, s.R, s.Phi, s.Z, s.Layer, s.SectorsPhi,
		s.EtaMin, s.EtaMax, s.QMin, s.QMax)
}

// InSector returns the mask of sectors, indexed eta*numSectorsPhi + phi, the
// stub has to be routed to.
func (df *DataFormats) InSector(s StubPP) bitvec.BV {
	numPhi := df.setup.NumSectorsPhi()
	mask := bitvec.New(0, df.setup.NumSectors())
	for eta := s.EtaMin; eta <= s.EtaMax; eta++ {
		if eta < 0 || eta >= df.setup.NumSectorsEta() {
			continue
		}
		for phi := 0; phi < numPhi; phi++ {
			if s.SectorsPhi.Test(phi) {
				mask.Set(eta*numPhi + phi)
			}
		}
	}
	return mask
}

// StubGP is a stub routed into one sector. Phi and Z are relative to the
// sector centre.
type StubGP struct {
	R, Phi, Z  float64
	Layer      int
	QMin, QMax int
}

// DecodeGP reads a gp frame.
func (df *DataFormats) DecodeGP(bv bitvec.BV) StubGP {
	var s StubGP
	df.Extract(RecordGP, bv, &s.R, &s.Phi, &s.Z, &s.Layer, &s.QMin, &s.QMax)
	return s
}

// EncodeGP writes a gp frame.
func (df *DataFormats) EncodeGP(s StubGP) bitvec.BV {
	return df.Attach(RecordGP, s.R, s.Phi, s.Z, s.Layer, s.QMin, s.QMax)
}

// NewStubGP transforms a pp stub into the frame of sector (sectorPhi,
// sectorEta). It reports false when the stub falls outside the gp formats.
func (df *DataFormats) NewStubGP(pp StubPP, sectorPhi, sectorEta int) (StubGP, bool) {
	s := df.setup
	phi := pp.Phi - (float64(sectorPhi)-0.5)*s.BaseSector()
	z := pp.Z - (pp.R+s.ChosenRofPhi())*s.SectorCot(sectorEta)
	fPhi, fZ := df.Format(Phi, GP), df.Format(Z, GP)
	if !fPhi.InRange(phi) || !fZ.InRange(z) {
		return StubGP{}, false
	}
	return StubGP{
		R: pp.R, Phi: fPhi.Digi(phi), Z: fZ.Digi(z), Layer: pp.Layer,
		QMin: pp.QMin, QMax: pp.QMax,
	}, true
}

// StubHT is a stub assigned to a coarse (phiT, q/pT) cell. Phi is the
// residual to the cell centre. The q/pT bin is given by the channel and is
// not part of the frame.
type StubHT struct {
	R, Phi, Z            float64
	Layer                int
	SectorPhi, SectorEta int
	PhiT                 int
	QoverPt              int
}

// DecodeHT reads an ht frame received on the channel of signed bin qOverPt.
func (df *DataFormats) DecodeHT(bv bitvec.BV, qOverPt int) StubHT {
	s := StubHT{QoverPt: qOverPt}
	df.Extract(RecordHT, bv, &s.R, &s.Phi, &s.Z, &s.Layer, &s.SectorPhi, &s.SectorEta, &s.PhiT)
	return s
}

// EncodeHT writes an ht frame.
func (df *DataFormats) EncodeHT(s StubHT) bitvec.BV {
	return df.Attach(RecordHT, s.R, s.Phi, s.Z, s.Layer, s.SectorPhi, s.SectorEta, s.PhiT)
}

// NewStubHT assigns a gp stub of a sector to the coarse cell (phiT, qOverPt).
func (df *DataFormats) NewStubHT(gp StubGP, sectorPhi, sectorEta, phiT, qOverPt int) (StubHT, bool) {
	phi := gp.Phi + df.Format(QoverPt, HT).Floating(qOverPt)*gp.R - df.Format(PhiT, HT).Floating(phiT)
	f := df.Format(Phi, HT)
	if !f.InRange(phi) || !df.Format(PhiT, HT).InRangeInt(phiT) {
		return StubHT{}, false
	}
	return StubHT{
		R: gp.R, Phi: f.Digi(phi), Z: gp.Z, Layer: gp.Layer,
		SectorPhi: sectorPhi, SectorEta: sectorEta, PhiT: phiT, QoverPt: qOverPt,
	}, true
}

// StubMHT is a stub assigned to a fine (phiT, q/pT) cell.
type StubMHT struct {
	Barrel, PS           bool
	R, Phi, Z            float64
	Layer                int
	SectorPhi, SectorEta int
	PhiT, QoverPt        int
}

// DecodeMHT reads an mht frame.
func (df *DataFormats) DecodeMHT(bv bitvec.BV) StubMHT {
	var s StubMHT
	df.Extract(RecordMHT, bv, &s.Barrel, &s.PS, &s.R, &s.Phi, &s.Z, &s.Layer,
		&s.SectorPhi, &s.SectorEta, &s.PhiT, &s.QoverPt)
	return s
}

// EncodeMHT writes an mht frame.
func (df *DataFormats) EncodeMHT(s StubMHT) bitvec.BV {
	return df.Attach(RecordMHT, s.Barrel, s.PS, s.R, s.Phi, s.Z, s.Layer,
		s.SectorPhi, s.SectorEta, s.PhiT, s.QoverPt)
}

// NewStubMHT refines an ht stub into fine cell (cellPhiT, cellQ) of its
// coarse cell.
func (df *DataFormats) NewStubMHT(ht StubHT, barrel, ps bool, cellPhiT, cellQ int) (StubMHT, bool) {
	s := df.setup
	phi := ht.Phi + df.Base(QoverPt, MHT)*(float64(cellQ)-0.5)*ht.R -
		df.Base(PhiT, MHT)*(float64(cellPhiT)-0.5)
	f := df.Format(Phi, MHT)
	if !f.InRange(phi) {
		return StubMHT{}, false
	}
	return StubMHT{
		Barrel: barrel, PS: ps,
		R: ht.R, Phi: f.Digi(phi), Z: ht.Z, Layer: ht.Layer,
		SectorPhi: ht.SectorPhi, SectorEta: ht.SectorEta,
		PhiT:    ht.PhiT*s.MHTNumBinsPhiT() + cellPhiT,
		QoverPt: ht.QoverPt*s.MHTNumBinsQoverPt() + cellQ,
	}, true
}

// StubSF is an mht stub selected by the seed filter, tagged with the seed
// line it was selected by.
type StubSF struct {
	StubMHT
	Z0, Cot float64
}

// DecodeSF reads an sf frame.
func (df *DataFormats) DecodeSF(bv bitvec.BV) StubSF {
	var s StubSF
	df.Extract(RecordSF, bv, &s.Barrel, &s.PS, &s.R, &s.Phi, &s.Z, &s.Layer,
		&s.SectorPhi, &s.SectorEta, &s.PhiT, &s.QoverPt, &s.Z0, &s.Cot)
	return s
}

// EncodeSF writes an sf frame.
func (df *DataFormats) EncodeSF(s StubSF) bitvec.BV {
	return df.Attach(RecordSF, s.Barrel, s.PS, s.R, s.Phi, s.Z, s.Layer,
		s.SectorPhi, s.SectorEta, s.PhiT, s.QoverPt, s.Z0, s.Cot)
}

// NewStubSF tags an mht stub with a seed line.
func (df *DataFormats) NewStubSF(mht StubMHT, z0, cot float64) (StubSF, bool) {
	fZ0, fCot := df.Format(Z0, SF), df.Format(Cot, SF)
	if !fZ0.InRange(z0) || !fCot.InRange(cot) {
		return StubSF{}, false
	}
	return StubSF{StubMHT: mht, Z0: fZ0.Digi(z0), Cot: fCot.Digi(cot)}, true
}

// TrackLR holds the helix parameters fitted by the linear regression.
type TrackLR struct {
	PhiT, QoverPt, ZT, Cot float64
}

// DecodeLR reads an lr track frame.
func (df *DataFormats) DecodeLR(bv bitvec.BV) TrackLR {
	var t TrackLR
	df.Extract(RecordLR, bv, &t.PhiT, &t.QoverPt, &t.ZT, &t.Cot)
	return t
}

// EncodeLR writes an lr track frame.
func (df *DataFormats) EncodeLR(t TrackLR) bitvec.BV {
	return df.Attach(RecordLR, t.PhiT, t.QoverPt, t.ZT, t.Cot)
}

// NewTrackLR quantises fitted parameters. It reports false when any of them
// is outside the lr formats.
func (df *DataFormats) NewTrackLR(phiT, qOverPt, zT, cot float64) (TrackLR, bool) {
	vals := [...]float64{phiT, qOverPt, zT, cot}
	vars := [...]Variable{PhiT, QoverPt, ZT, Cot}
	for i, v := range vars {
		f := df.Format(v, LR)
		if !f.InRange(vals[i]) {
			return TrackLR{}, false
		}
		vals[i] = f.Digi(vals[i])
	}
	return TrackLR{PhiT: vals[0], QoverPt: vals[1], ZT: vals[2], Cot: vals[3]}, true
}

// StubKFin is a stub as delivered to the Kalman filter.
type StubKFin struct {
	Barrel, PS bool
	R, Phi, Z  float64
	Layer      int // KF layer index
}

// DecodeKFinStub reads a kfin stub frame.
func (df *DataFormats) DecodeKFinStub(bv bitvec.BV) StubKFin {
	var s StubKFin
	df.Extract(RecordKFinStub, bv, &s.Barrel, &s.PS, &s.R, &s.Phi, &s.Z, &s.Layer)
	return s
}

// EncodeKFinStub writes a kfin stub frame.
func (df *DataFormats) EncodeKFinStub(s StubKFin) bitvec.BV {
	return df.Attach(RecordKFinStub, s.Barrel, s.PS, s.R, s.Phi, s.Z, s.Layer)
}

// TrackKFin is a track candidate as delivered to the Kalman filter.
type TrackKFin struct {
	HitPattern           bitvec.BV // layers with at least one stub
	LayerMap             bitvec.BV // two bit stub count per layer
	SectorPhi, SectorEta int
	PhiT, QoverPt        int
	Z0, Cot              float64
}

// DecodeKFinTrack reads a kfin track frame.
func (df *DataFormats) DecodeKFinTrack(bv bitvec.BV) TrackKFin {
	var t TrackKFin
	df.Extract(RecordKFinTrack, bv, &t.HitPattern, &t.LayerMap, &t.SectorPhi, &t.SectorEta,
		&t.PhiT, &t.QoverPt, &t.Z0, &t.Cot)
	return t
}

// EncodeKFinTrack writes a kfin track frame.
func (df *DataFormats) EncodeKFinTrack(t TrackKFin) bitvec.BV {
	return df.Attach(RecordKFinTrack, t.HitPattern, t.LayerMap, t.SectorPhi, t.SectorEta,
		t.PhiT, t.QoverPt, t.Z0, t.Cot)
}

// LayerCount returns the number of stubs on a layer recorded in a layer map.
func LayerCount(layerMap bitvec.BV, layer int) int {
	return int(layerMap.Slice(2*layer, 2*layer+2).Uint64())
}

// SetLayerCount records a stub count, saturated at three, in a layer map.
func SetLayerCount(layerMap *bitvec.BV, layer, count int) {
	count = min(count, 3)
	for b := 0; b < 2; b++ {
		if count&(1<<b) != 0 {
			layerMap.Set(2*layer + b)
		} else {
			layerMap.Reset(2*layer + b)
		}
	}
}
