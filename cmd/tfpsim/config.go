package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/sarchlab/tfpsim/benchmarks"
	"github.com/sarchlab/tfpsim/setup"
)

func configCmd() *cli.Command {
	var outPath string

	return &cli.Command{
		Name:  "config",
		Usage: "Write the default config as json or yaml",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path, .yaml or .yml for yaml",
				Destination: &outPath,
				Required:    true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := setup.DefaultConfig().SaveConfig(outPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout(cmd), "Wrote %s\n", outPath)
			return nil
		},
	}
}

func generateCmd() *cli.Command {
	var (
		configPath string
		outPath    string
		name       string
		tracks     int
		seed       int
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Write an event file of random tracks",
		Flags: []cli.Flag{
			configFlag(&configPath),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path, .yaml or .yml for yaml",
				Destination: &outPath,
				Required:    true,
			},
			&cli.StringFlag{Name: "name", Usage: "event name", Value: "random", Destination: &name},
			&cli.IntFlag{Name: "tracks", Aliases: []string{"n"}, Usage: "number of tracks", Value: 10, Destination: &tracks},
			&cli.IntFlag{Name: "seed", Usage: "random seed", Value: 1, Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if tracks < 0 {
				return fmt.Errorf("negative number of tracks %d", tracks)
			}
			df, err := loadFormats(configPath)
			if err != nil {
				return err
			}

			ev := benchmarks.NewGenerator(df, uint64(seed)).RandomEvent(name, tracks)
			if err := ev.Save(outPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout(cmd), "Wrote %d stubs of %d tracks to %s\n", len(ev.Stubs), tracks, outPath)
			return nil
		},
	}
}
