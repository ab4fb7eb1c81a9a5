package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
	"github.com/sarchlab/tfpsim/loader"
	"github.com/sarchlab/tfpsim/stream"
	"github.com/sarchlab/tfpsim/timing/core"
)

func runCmd() *cli.Command {
	var (
		configPath  string
		eventPath   string
		outDir      string
		logFormat   string
		verbosity   int
		parallelism int
		printJSON   bool
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Process an event file through all stages",
		Flags: []cli.Flag{
			configFlag(&configPath),
			&cli.StringFlag{
				Name:        "event",
				Aliases:     []string{"e"},
				Usage:       "path to a json or yaml event file",
				Destination: &eventPath,
				Required:    true,
			},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "directory for hex dumps of every stage", Destination: &outDir},
			&cli.StringFlag{Name: "log-format", Usage: "text or json", Value: "text", Destination: &logFormat},
			&cli.IntFlag{Name: "v", Usage: "log verbosity", Destination: &verbosity},
			&cli.IntFlag{Name: "parallelism", Usage: "regions processed at once (0 = no limit)", Destination: &parallelism},
			&cli.BoolFlag{Name: "json", Usage: "print the statistics as json", Destination: &printJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log, err := newLogger(stderr(cmd), logFormat, verbosity)
			if err != nil {
				return err
			}

			df, err := loadFormats(configPath)
			if err != nil {
				return err
			}
			ev, err := loader.Load(eventPath)
			if err != nil {
				return err
			}
			input, err := ev.Streams(df)
			if err != nil {
				return fmt.Errorf("event %s: %w", eventPath, err)
			}

			enc := layerenc.New(df, layerenc.WithLogger(log))
			c := core.New(df, enc, core.WithLogger(log), core.WithParallelism(parallelism))
			res, err := c.Run(ctx, input)
			if err != nil {
				return err
			}

			w := stdout(cmd)
			if printJSON {
				data, err := json.MarshalIndent(res.Stats, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to serialize statistics: %w", err)
				}
				_, _ = fmt.Fprintln(w, string(data))
			} else {
				printStats(w, res)
			}

			if outDir == "" {
				return nil
			}
			dir := filepath.Join(outDir, res.RunID.String())
			if err := writeDumps(dir, df, res); err != nil {
				return err
			}
			log.Info("hex dumps written", "dir", dir)
			return nil
		},
	}
}

func printStats(w io.Writer, res *core.Result) {
	s := res.Stats
	_, _ = fmt.Fprintf(w, "Run: %s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Regions: %d\n", s.Regions)
	_, _ = fmt.Fprintf(w, "Input stubs: %d\n", s.Input)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "GP:   accepted %d, lost %d, out of range %d\n", s.GP.Accepted, s.GP.Lost(), s.GP.OutOfRange)
	_, _ = fmt.Fprintf(w, "HT:   candidates %d, accepted %d, lost %d\n", s.HT.Candidates, s.HT.Accepted, s.HT.Lost)
	_, _ = fmt.Fprintf(w, "MHT:  cells %d, accepted %d, lost %d\n", s.MHT.Cells, s.MHT.Accepted, s.MHT.Lost)
	_, _ = fmt.Fprintf(w, "SF:   seeds %d, tracks %d, lost %d\n", s.SF.Seeds, s.SF.Tracks, s.SF.Lost)
	_, _ = fmt.Fprintf(w, "LR:   fitted %d, failed %d, dropped stubs %d\n", s.LR.Fitted, s.LR.Failed, s.LR.Dropped)
	_, _ = fmt.Fprintf(w, "KFin: tracks %d, stubs %d, lost tracks %d, lost stubs %d\n",
		s.KFin.Tracks, s.KFin.Stubs, s.KFin.LostTracks, s.KFin.LostStubs)
}

// writeDumps writes one hex file per stage output into dir.
func writeDumps(dir string, df *formats.DataFormats, res *core.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	s := df.Setup()
	opts := func(p formats.Process, scale int) stream.HexOptions {
		return stream.HexOptions{
			NumRegions:     s.NumRegions(),
			NumChannel:     df.NumChannel(p) * scale,
			NumFrames:      s.NumFrames(),
			NumFramesInfra: s.NumFramesInfra(),
		}
	}

	dumps := []struct {
		name    string
		streams stream.Streams
		opts    stream.HexOptions
	}{
		{"gp_accepted", res.GP.Accepted, opts(formats.GP, 1)},
		{"gp_lost", res.GP.Lost, opts(formats.GP, 1)},
		{"ht_accepted", res.HT.Accepted, opts(formats.HT, 1)},
		{"ht_lost", res.HT.Lost, opts(formats.HT, 1)},
		{"mht_accepted", res.MHT.Accepted, opts(formats.MHT, 1)},
		{"mht_lost", res.MHT.Lost, opts(formats.MHT, 1)},
		{"sf_accepted", res.SF.Accepted, opts(formats.SF, 1)},
		{"sf_lost", res.SF.Lost, opts(formats.SF, 1)},
		{"kfin_tracks", res.KFinTracks.Accepted, opts(formats.KFin, 1)},
		{"kfin_tracks_lost", res.KFinTracks.Lost, opts(formats.KFin, 1)},
		{"kfin_stubs", res.KFinStubs.Accepted, opts(formats.KFin, s.NumLayers())},
		{"kfin_stubs_lost", res.KFinStubs.Lost, opts(formats.KFin, s.NumLayers())},
	}
	for _, d := range dumps {
		err := writeFile(filepath.Join(dir, d.name+".txt"), func(w io.Writer) error {
			return stream.WriteHex(w, d.streams, d.opts)
		})
		if err != nil {
			return err
		}
	}

	return writeFile(filepath.Join(dir, "lr.txt"), func(w io.Writer) error {
		return stream.WritePairedHex(w, res.LRTracks, res.LRStubs, opts(formats.LR, 1))
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
