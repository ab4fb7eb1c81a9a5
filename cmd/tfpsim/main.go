// Package main provides the command line interface of tfpsim.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"github.com/urfave/cli/v3"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "tfpsim",
		Usage: "Clock accurate emulator of the L1 track finding processor",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			formatsCmd(),
			layersCmd(),
			configCmd(),
			generateCmd(),
		},
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// newLogger roots logr on a slog handler. Verbosity v enables V(v) logs.
func newLogger(w io.Writer, format string, v int) (logr.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.Level(-v)}
	switch format {
	case "text":
		return logr.FromSlogHandler(slog.NewTextHandler(w, opts)), nil
	case "json":
		return logr.FromSlogHandler(slog.NewJSONHandler(w, opts)), nil
	}
	return logr.Logger{}, fmt.Errorf("unknown log format %q", format)
}

// loadFormats builds the registry of a config file, or of the defaults when
// path is empty.
func loadFormats(path string) (*formats.DataFormats, error) {
	cfg := setup.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = setup.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	s, err := setup.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build setup: %w", err)
	}
	return formats.New(s), nil
}

func configFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "path to a json or yaml config (default: built in)",
		Destination: dst,
	}
}
