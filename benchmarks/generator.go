package benchmarks

import (
	"math"
	"math/rand/v2"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/loader"
	"github.com/sarchlab/tfpsim/setup"
)

// Track holds the helix of a synthetic particle. PhiT is the azimuth at
// ChosenRofPhi relative to the region centre, QoverPt the curvature in
// rad/cm, Z0 and Cot the straight line in r-z.
type Track struct {
	Region  int
	PhiT    float64
	QoverPt float64
	Z0      float64
	Cot     float64
}

// Generator turns synthetic tracks into event files.
type Generator struct {
	setup *setup.Setup
	df    *formats.DataFormats
	rng   *rand.Rand
}

// NewGenerator creates a generator. Random tracks are drawn from a generator
// seeded with seed, so equal seeds give equal events.
func NewGenerator(df *formats.DataFormats, seed uint64) *Generator {
	return &Generator{
		setup: df.Setup(),
		df:    df,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// CellTrack returns the track through the centre of the fine hough cell
// (phiT, qOverPt) of a phi sector and through the centre of the seed filter
// bin (z0, cot) of an eta sector. All bins are signed.
func (g *Generator) CellTrack(region, sectorPhi, sectorEta, phiT, qOverPt, z0, cot int) Track {
	return Track{
		Region:  region,
		PhiT:    (float64(sectorPhi)-0.5)*g.setup.BaseSector() + g.df.Format(formats.PhiT, formats.MHT).Floating(phiT),
		QoverPt: g.df.Format(formats.QoverPt, formats.MHT).Floating(qOverPt),
		Z0:      g.df.Format(formats.Z0, formats.SF).Floating(z0),
		Cot:     g.setup.SectorCot(sectorEta) + g.df.Format(formats.Cot, formats.SF).Floating(cot),
	}
}

// RandomTrack draws a track within the acceptance of the processor.
func (g *Generator) RandomTrack() Track {
	s := g.setup
	halfPhi := float64(s.NumSectorsPhi()) / 2 * s.BaseSector()
	maxQ := 0.9 * g.df.Range(formats.QoverPt, formats.HT) / 2
	etaMin, etaMax := s.BoundaryEta(0), s.BoundaryEta(s.NumSectorsEta())
	return Track{
		Region:  g.rng.IntN(s.NumRegions()),
		PhiT:    (2*g.rng.Float64() - 1) * halfPhi,
		QoverPt: (2*g.rng.Float64() - 1) * maxQ,
		Z0:      (2*g.rng.Float64() - 1) * 0.9 * s.BeamWindowZ(),
		Cot:     math.Sinh(etaMin + g.rng.Float64()*(etaMax-etaMin)),
	}
}

// Stubs returns the stubs a track leaves in the sensor modules, at most one
// per detector layer. Crossings outside the pp formats leave no stub.
func (g *Generator) Stubs(t Track) []loader.Stub {
	s := g.setup
	eta := g.sectorEta(t.Cot)
	if eta < 0 {
		return nil
	}
	q := g.df.Format(formats.QoverPt, formats.HT)
	bin := q.Integer(t.QoverPt)
	if !q.InRangeInt(bin) {
		return nil
	}
	numChannel := g.df.NumChannel(formats.PP)

	var stubs []loader.Stub
	seen := make(map[int]bool)
	for i := range s.Modules() {
		m := &s.Modules()[i]
		den := m.Cos - m.Sin*t.Cot
		if seen[m.LayerID] || den == 0 {
			continue
		}
		d := (t.Z0 - m.Z + m.R*t.Cot) / den
		if math.Abs(d) >= m.Length()/2 {
			continue
		}
		layer := setup.InternalLayer(m.LayerID, m.Barrel)
		if layer < 0 {
			continue
		}

		r := m.R + d*m.Sin - s.ChosenRofPhi()
		z := m.Z + d*m.Cos
		phi := t.PhiT - t.QoverPt*r
		sector := int(math.Floor(phi/s.BaseSector())) + s.NumSectorsPhi()/2
		if sector < 0 || sector >= s.NumSectorsPhi() ||
			!g.df.Format(formats.R, formats.PP).InRange(r) ||
			!g.df.Format(formats.Phi, formats.PP).InRange(phi) ||
			!g.df.Format(formats.Z, formats.PP).InRange(z) {
			continue
		}

		seen[m.LayerID] = true
		stubs = append(stubs, loader.Stub{
			Region:     t.Region,
			Channel:    m.ID % numChannel,
			Module:     m.ID,
			R:          r,
			Phi:        phi,
			Z:          z,
			Layer:      layer,
			SectorsPhi: []int{sector},
			EtaMin:     eta,
			EtaMax:     eta,
			QMin:       bin,
			QMax:       bin,
		})
	}
	return stubs
}

func (g *Generator) sectorEta(cot float64) int {
	eta := math.Asinh(cot)
	for sector := 0; sector < g.setup.NumSectorsEta(); sector++ {
		if eta >= g.setup.BoundaryEta(sector) && eta < g.setup.BoundaryEta(sector+1) {
			return sector
		}
	}
	return -1
}

// Event collects the stubs of tracks into one event.
func (g *Generator) Event(name string, tracks ...Track) *loader.Event {
	ev := &loader.Event{Name: name}
	for _, t := range tracks {
		ev.Stubs = append(ev.Stubs, g.Stubs(t)...)
	}
	return ev
}

// RandomEvent draws an event of n random tracks.
func (g *Generator) RandomEvent(name string, n int) *loader.Event {
	tracks := make([]Track, n)
	for i := range tracks {
		tracks[i] = g.RandomTrack()
	}
	return g.Event(name, tracks...)
}
