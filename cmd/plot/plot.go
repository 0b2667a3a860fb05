package plot

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/vedollar/chart"
	"github.com/sig-0/vedollar/cmd/backend"
	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/query"
	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/types"
)

// plotCfg wraps the plot configuration
type plotCfg struct {
	out       string
	maxPoints int
}

// NewPlotCmd creates the plot subcommand
func NewPlotCmd() *ffcli.Command {
	cfg := &plotCfg{}

	fs := flag.NewFlagSet("plot", flag.ExitOnError)

	cmd := &ffcli.Command{
		Name:       "plot",
		ShortUsage: "plot <subcommand> [flags]",
		LongHelp:   "Plots every stored rate series (Bs/$) into a PNG file",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	sub := &backend.Command{
		Name:          "plot",
		LongHelp:      "Plots every stored rate series (Bs/$) into a PNG file",
		Backend:       &backend.Config{},
		Backends:      []backend.Kind{backend.KindSQL, backend.KindSQLite},
		RegisterFlags: cfg.registerFlags,
		Exec:          cfg.exec,
	}

	cmd.Subcommands = sub.Subcommands()

	return cmd
}

func (c *plotCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.out,
		"out",
		"rates.png",
		"the output PNG path",
	)

	fs.IntVar(
		&c.maxPoints,
		"max-points",
		chart.DefaultMaxPoints,
		"the maximum number of points plotted per series",
	)
}

func (c *plotCfg) exec(ctx context.Context, store storage.Storage, logger *slog.Logger, _ []string) error {
	svc := query.New(store)

	series := make([]chart.Series, 0, len(types.Sources))

	for _, source := range types.Sources {
		observations, err := svc.Series(ctx, source, time.Time{}, time.Now())
		if err != nil {
			return err
		}

		logger.Info(
			"loaded series",
			"source", source.String(),
			"observations", len(observations),
		)

		series = append(series, chart.Series{
			Source:       source,
			Observations: observations,
		})
	}

	if dir := filepath.Dir(c.out); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("unable to create output dir: %w", err)
		}
	}

	file, err := os.Create(c.out)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer file.Close()

	if err = chart.Render(file, series, c.maxPoints); err != nil {
		return err
	}

	logger.Info("plot written", "path", c.out)

	return nil
}
