package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/layerenc"
)

func formatsCmd() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "formats",
		Usage: "Print width, base and range of every owned format",
		Flags: []cli.Flag{configFlag(&configPath)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			df, err := loadFormats(configPath)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "variable\tstage\tsigned\twidth\tbase\trange\tshared by")
			for _, v := range formats.Variables {
				for _, p := range formats.Processes {
					if owner, ok := df.Owner(v, p); !ok || owner != p {
						continue
					}
					f := df.Format(v, p)
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%.6g\t%.6g\t%v\n",
						v, p, f.Twos(), f.Width(), f.Base(), f.Range(), sharedBy(df, v, p))
				}
			}
			return tw.Flush()
		},
	}
}

// sharedBy lists the stages other than p using the format owned by p.
func sharedBy(df *formats.DataFormats, v formats.Variable, p formats.Process) []formats.Process {
	var out []formats.Process
	for _, other := range formats.Processes {
		if owner, ok := df.Owner(v, other); ok && owner == p && other != p {
			out = append(out, other)
		}
	}
	return out
}

func layersCmd() *cli.Command {
	var (
		configPath string
		eta        int
	)

	return &cli.Command{
		Name:  "layers",
		Usage: "Print the layer encoding of an eta sector",
		Flags: []cli.Flag{
			configFlag(&configPath),
			&cli.IntFlag{Name: "eta", Usage: "eta sector", Destination: &eta, Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			df, err := loadFormats(configPath)
			if err != nil {
				return err
			}
			if eta < 0 || eta >= df.Setup().NumSectorsEta() {
				return fmt.Errorf("%w: eta %d", layerenc.ErrBinOutOfRange, eta)
			}

			enc := layerenc.New(df)
			numZ0 := 1 << df.Width(formats.Z0, formats.KFin)
			numCot := 1 << df.Width(formats.Cot, formats.KFin)

			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "z0\tcot\tlayers\tmaybe")
			for z0 := 0; z0 < numZ0; z0++ {
				for cot := 0; cot < numCot; cot++ {
					_, _ = fmt.Fprintf(tw, "%d\t%d\t%v\t%v\n",
						z0, cot, enc.Layers(eta, z0, cot), enc.MaybeLayers(eta, z0, cot))
				}
			}
			return tw.Flush()
		},
	}
}
