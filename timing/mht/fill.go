package mht

import (
	"math"
	"math/bits"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/stream"
)

// FineCells returns the fine cells, numbered qOverPt*numBinsPhiT + phiT, a
// coarse stub with phi residual phi at radius r contributes to. The first
// cell is always used; the others only when the stub is close enough to the
// cell borders.
func (t *Transform) FineCells(phi, r float64) []int {
	compA := 2*math.Abs(phi) < t.df.Base(formats.PhiT, formats.HT)
	compB := 2*math.Abs(phi) < math.Abs(r*t.df.Base(formats.QoverPt, formats.HT))
	compAB := compA && compB

	var cells [3]int
	switch {
	case phi >= 0 && r < 0:
		cells = [3]int{3, 1, 2}
	case phi >= 0 && r >= 0:
		cells = [3]int{1, 3, 0}
	case phi < 0 && r < 0:
		cells = [3]int{0, 2, 1}
	default:
		cells = [3]int{2, 0, 3}
	}

	out := []int{cells[0]}
	if compA {
		out = append(out, cells[1])
	}
	if compAB {
		out = append(out, cells[2])
	}
	return out
}

// fill splits every coarse candidate of one channel into its fine cells.
// Each cell stream receives the cell stubs padded with gaps to the coarse
// candidate length.
func (t *Transform) fill(s stream.Stream, qOverPt int, cells [][]*stub) {
	numPhiT := t.setup.MHTNumBinsPhiT()
	runs := stream.Runs(s, func(f stream.Frame) uint64 {
		return t.df.TrackID(formats.RecordHT, f.Bits)
	})
	t.stats.Candidates += uint64(len(runs))

	for _, run := range runs {
		fine := make([][]*stub, t.numCells)
		for _, f := range s[run.Start:run.End] {
			t.stats.Input++
			coarse := t.df.DecodeHT(f.Bits, qOverPt)
			var barrel, ps bool
			if f.Ref.Module != nil {
				barrel, ps = f.Ref.Module.Barrel, f.Ref.Module.PS
			}
			for _, cell := range t.FineCells(coarse.Phi, coarse.R) {
				m, ok := t.df.NewStubMHT(coarse, barrel, ps, cell%numPhiT, cell/numPhiT)
				if !ok {
					continue
				}
				b := t.df.EncodeMHT(m)
				fine[cell] = append(fine[cell], &stub{
					ref: f.Ref, mht: m, bits: b, id: t.df.TrackID(formats.RecordMHT, b),
				})
			}
		}

		for sel, stubs := range fine {
			if countLayers(stubs) < t.setup.MHTMinLayers() {
				stubs = nil
			} else {
				t.stats.Cells++
			}
			cells[sel] = append(cells[sel], stubs...)
			cells[sel] = append(cells[sel], make([]*stub, run.Len()-len(stubs))...)
		}
	}

	for sel := range cells {
		cells[sel] = t.regap(cells[sel])
	}
}

// regap removes the gaps of a cell stream and delays every fine candidate
// until the coarse candidates before it, including its own, have been read
// in. The leading delay of the quickest candidate is then removed.
func (t *Transform) regap(cell []*stub) []*stub {
	var out []*stub
	pos := 0
	for i := 0; i < len(cell); {
		if cell[i] == nil {
			i++
			continue
		}
		end := i
		for end < len(cell) && cell[end] != nil && cell[end].id == cell[i].id {
			end++
		}
		pos += end - i
		if d := len(out); d < pos {
			out = append(out, make([]*stub, pos-d)...)
		}
		out = append(out, cell[i:end]...)
		i = end
	}
	if skip := t.setup.MHTMinLayers(); len(out) > 0 {
		out = out[min(skip, len(out)):]
	}
	return out
}

func countLayers(stubs []*stub) int {
	var layers uint64
	for _, st := range stubs {
		layers |= 1 << uint(st.mht.Layer)
	}
	return bits.OnesCount64(layers)
}
