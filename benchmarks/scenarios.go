package benchmarks

import "github.com/sarchlab/tfpsim/loader"

// GetBenchmarks returns the standard set of synthetic events.
func GetBenchmarks() []Benchmark {
	return []Benchmark{
		singleStub(),
		endcapTrack(),
		randomTracks("random_tracks_10", 10),
		randomTracks("random_tracks_200", 200),
		sectorPileUp(),
	}
}

// GetCoreBenchmarks returns a minimal set of events for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		singleStub(),
		endcapTrack(),
	}
}

// EndcapTrack is a track of region 0 through the centre of a fine hough
// cell and a seed filter bin of eta sector 13. It crosses barrel layer 1 and
// disks 11 to 14.
func EndcapTrack(g *Generator) Track {
	return g.CellTrack(0, 1, 13, 5, 2, 0, 0)
}

func singleStub() Benchmark {
	return Benchmark{
		Name:        "single_stub",
		Description: "one stub, which no stage after the geometric processor keeps",
		Event: func(g *Generator) *loader.Event {
			stubs := g.Stubs(EndcapTrack(g))
			return &loader.Event{Name: "single_stub", Stubs: stubs[:1]}
		},
	}
}

func endcapTrack() Benchmark {
	return Benchmark{
		Name:        "endcap_track",
		Description: "one clean track found by every stage",
		Event: func(g *Generator) *loader.Event {
			return g.Event("endcap_track", EndcapTrack(g))
		},
	}
}

func randomTracks(name string, n int) Benchmark {
	return Benchmark{
		Name:        name,
		Description: "random tracks spread over all regions",
		Event: func(g *Generator) *loader.Event {
			return g.RandomEvent(name, n)
		},
	}
}

// sectorPileUp repeats one track many times so that every stage runs into
// its frame budget.
func sectorPileUp() Benchmark {
	return Benchmark{
		Name:        "sector_pile_up",
		Description: "one hundred copies of a track in a single sector",
		Event: func(g *Generator) *loader.Event {
			tracks := make([]Track, 100)
			for i := range tracks {
				tracks[i] = EndcapTrack(g)
			}
			return g.Event("sector_pile_up", tracks...)
		},
	}
}
