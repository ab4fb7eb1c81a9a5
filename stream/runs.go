package stream

// Run is a maximal span of consecutive valid frames sharing one track id.
type Run struct {
	ID    uint64
	Start int // index of the first frame
	End   int // index past the last frame
}

// Len returns the number of frames in the run.
func (r Run) Len() int { return r.End - r.Start }

// Runs groups frames into contiguous runs of equal id. Gaps end a run and are
// not part of any run. Equal ids separated by a different id form separate
// runs.
func Runs(frames []Frame, id func(Frame) uint64) []Run {
	var runs []Run
	for i := 0; i < len(frames); {
		if !frames[i].Valid() {
			i++
			continue
		}
		run := Run{ID: id(frames[i]), Start: i}
		i++
		for i < len(frames) && frames[i].Valid() && id(frames[i]) == run.ID {
			i++
		}
		run.End = i
		runs = append(runs, run)
	}
	return runs
}
