// Package core provides the track finding processor model.
// It chains the stages of every region and runs the regions in parallel.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
	"github.com/sarchlab/tfpsim/setup"
	"github.com/sarchlab/tfpsim/stream"
	"github.com/sarchlab/tfpsim/timing/gp"
	"github.com/sarchlab/tfpsim/timing/ht"
	"github.com/sarchlab/tfpsim/timing/kfin"
	"github.com/sarchlab/tfpsim/timing/lr"
	"github.com/sarchlab/tfpsim/timing/mht"
	"github.com/sarchlab/tfpsim/timing/sf"
)

// ErrInputSize is returned when the input does not hold one stream per
// processor link.
var ErrInputSize = errors.New("unexpected number of input streams")

// Stats holds the counters of all stages summed over regions.
type Stats struct {
	// Regions is the number of regions processed.
	Regions uint64
	// Input is the number of valid input stubs.
	Input uint64

	GP   gp.Statistics
	HT   ht.Statistics
	MHT  mht.Statistics
	SF   sf.Statistics
	LR   lr.Statistics
	KFin kfin.Statistics
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Regions: s.Regions + o.Regions,
		Input:   s.Input + o.Input,
		GP:      s.GP.Add(o.GP),
		HT:      s.HT.Add(o.HT),
		MHT:     s.MHT.Add(o.MHT),
		SF:      s.SF.Add(o.SF),
		LR:      s.LR.Add(o.LR),
		KFin:    s.KFin.Add(o.KFin),
	}
}

// StageStreams holds the accepted and lost streams of one stage.
type StageStreams struct {
	Accepted stream.Streams
	Lost     stream.Streams
}

// Result holds the outputs of one run. All streams are global: region r,
// channel c sits at r*NumChannel + c. KFin stub streams use
// NumChannel(KFin)*NumLayers channels per region.
type Result struct {
	RunID uuid.UUID

	GP  StageStreams
	HT  StageStreams
	MHT StageStreams
	SF  StageStreams

	LRStubs  stream.Streams
	LRTracks stream.Streams

	KFinTracks StageStreams
	KFinStubs  StageStreams

	Stats Stats
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Core) {
		c.log = log
	}
}

// WithParallelism limits the number of regions processed at once. Values
// below one mean no limit.
func WithParallelism(n int) Option {
	return func(c *Core) {
		c.parallelism = n
	}
}

// Core is the track finding processor of all regions. The registry and the
// layer encoding are shared read only; every region gets fresh stages.
type Core struct {
	setup       *setup.Setup
	df          *formats.DataFormats
	enc         *layerenc.Encoding
	log         logr.Logger
	parallelism int
}

// New creates a Core.
func New(df *formats.DataFormats, enc *layerenc.Encoding, opts ...Option) *Core {
	c := &Core{
		setup: df.Setup(),
		df:    df,
		enc:   enc,
		log:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// region holds the outputs of one region.
type region struct {
	gp, ht, mht, sf   StageStreams
	lrStubs, lrTracks stream.Streams
	kfin              kfin.Output
	stats             Stats
}

// Run processes one event. input holds the pp streams of all regions.
func (c *Core) Run(ctx context.Context, input stream.Streams) (*Result, error) {
	numRegions := c.setup.NumRegions()
	numPP := c.df.NumChannel(formats.PP)
	if len(input) != numRegions*numPP {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), numRegions*numPP)
	}

	id := uuid.New()
	log := c.log.WithValues("run", id.String())

	regions := make([]region, numRegions)
	g, ctx := errgroup.WithContext(ctx)
	if c.parallelism > 0 {
		g.SetLimit(c.parallelism)
	}
	for r := 0; r < numRegions; r++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			regions[r] = c.region(input.Region(r, numPP), log.WithValues("region", r))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}

	res := &Result{RunID: id}
	for _, reg := range regions {
		res.GP = appendStage(res.GP, reg.gp)
		res.HT = appendStage(res.HT, reg.ht)
		res.MHT = appendStage(res.MHT, reg.mht)
		res.SF = appendStage(res.SF, reg.sf)
		res.LRStubs = append(res.LRStubs, reg.lrStubs...)
		res.LRTracks = append(res.LRTracks, reg.lrTracks...)
		res.KFinTracks = appendStage(res.KFinTracks, StageStreams{reg.kfin.AcceptedTracks, reg.kfin.LostTracks})
		res.KFinStubs = appendStage(res.KFinStubs, StageStreams{reg.kfin.AcceptedStubs, reg.kfin.LostStubs})
		res.Stats = res.Stats.add(reg.stats)
	}

	log.Info("event processed",
		"input", res.Stats.Input,
		"gp", res.Stats.GP.Accepted,
		"mht", res.Stats.MHT.Accepted,
		"sf", res.Stats.SF.Tracks,
		"lr", res.Stats.LR.Fitted,
		"kfin", res.Stats.KFin.Tracks)
	return res, nil
}

func appendStage(dst, src StageStreams) StageStreams {
	return StageStreams{
		Accepted: append(dst.Accepted, src.Accepted...),
		Lost:     append(dst.Lost, src.Lost...),
	}
}

// region chains all stages of one region.
func (c *Core) region(input stream.Streams, log logr.Logger) region {
	var out region

	gpStage := gp.New(c.df, gp.WithLogger(log))
	htStage := ht.New(c.df, ht.WithLogger(log))
	mhtStage := mht.New(c.df, mht.WithLogger(log))
	sfStage := sf.New(c.df, sf.WithLogger(log))
	lrStage := lr.New(c.df, lr.WithLogger(log))
	kfinStage := kfin.New(c.df, c.enc, kfin.WithLogger(log))

	out.gp.Accepted, out.gp.Lost = gpStage.Process(input)
	out.ht.Accepted, out.ht.Lost = htStage.Process(out.gp.Accepted)
	out.mht.Accepted, out.mht.Lost = mhtStage.Process(out.ht.Accepted)
	out.sf.Accepted, out.sf.Lost = sfStage.Process(out.mht.Accepted)
	out.lrStubs, out.lrTracks = lrStage.Process(out.sf.Accepted)
	out.kfin = kfinStage.Process(out.lrStubs, out.lrTracks)

	out.stats = Stats{
		Regions: 1,
		Input:   uint64(input.Count()),
		GP:      gpStage.Stats(),
		HT:      htStage.Stats(),
		MHT:     mhtStage.Stats(),
		SF:      sfStage.Stats(),
		LR:      lrStage.Stats(),
		KFin:    kfinStage.Stats(),
	}
	return out
}
