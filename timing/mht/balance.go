package mht

import "github.com/sarchlab/tfpsim/stream"

// slb multiplexes the cell streams of one channel into one stream. The
// enabled FIFO is read until it runs empty, then the lowest non-empty FIFO
// is enabled.
func (t *Transform) slb(inputs [][]*stub) (accepted []*stub, lost stream.Stream) {
	if allEmpty(inputs) {
		return nil, nil
	}
	fifos := make([][]*stub, len(inputs))
	enabled := -1
	for !allEmpty(inputs) || !allEmpty(fifos) {
		for k := range inputs {
			if st := popFront(&inputs[k]); st != nil {
				fifos[k] = append(fifos[k], st)
			}
		}
		if enabled < 0 || len(fifos[enabled]) == 0 {
			enabled = -1
			for k := range fifos {
				if len(fifos[k]) > 0 {
					enabled = k
					break
				}
			}
		}
		if enabled < 0 {
			accepted = append(accepted, nil)
			continue
		}
		accepted = append(accepted, popFront(&fifos[enabled]))
	}

	if limit := t.setup.NumFrames(); t.setup.EnableTruncation() && len(accepted) > limit {
		for _, st := range accepted[limit:] {
			if st != nil {
				lost = append(lost, t.frame(st))
			}
		}
		accepted = accepted[:limit]
		t.stats.Lost += uint64(len(lost))
	}

	end := len(accepted)
	for end > 0 && accepted[end-1] == nil {
		end--
	}
	return accepted[:end], lost
}

// dlb balances a pair of streams. At every slot where a new candidate starts
// on one stream while the other is idle, the pair is swapped from then on if
// that evens out the accumulated load.
func (t *Transform) dlb(streams [][]*stub) {
	n := 0
	for _, s := range streams {
		n = max(n, len(s))
	}
	if n == 0 {
		return
	}
	for k := range streams {
		streams[k] = append(streams[k], make([]*stub, n-len(streams[k]))...)
	}

	nc := len(streams)
	prev := make([]int64, nc)
	for k := range prev {
		prev[k] = -1
	}
	loads := make([]int, nc)
	newTrk := make([]bool, nc)
	swapping := false

	for i := 0; i < n; i++ {
		for k := 0; k < nc; k++ {
			st := streams[k][i]
			newTrk[k] = streams[nc-k-1][i] == nil && st != nil && int64(st.id) != prev[k]
		}
		for k := 0; k < nc; k++ {
			if !newTrk[k] {
				continue
			}
			if (swapping && loads[nc-k-1] > loads[k]) || (!swapping && loads[k] > loads[nc-k-1]) {
				swapping = !swapping
			}
		}
		for k := 0; k < nc; k++ {
			st := streams[k][i]
			if st == nil {
				prev[k] = -1
				continue
			}
			if swapping {
				loads[nc-k-1]++
			} else {
				loads[k]++
			}
			prev[k] = int64(st.id)
		}
		if swapping {
			streams[0][i], streams[1][i] = streams[1][i], streams[0][i]
		}
	}
}

func popFront(q *[]*stub) *stub {
	if len(*q) == 0 {
		return nil
	}
	st := (*q)[0]
	*q = (*q)[1:]
	return st
}

func allEmpty(qs [][]*stub) bool {
	for _, q := range qs {
		if len(q) > 0 {
			return false
		}
	}
	return true
}
