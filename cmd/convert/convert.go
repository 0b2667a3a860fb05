package convert

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/vedollar/cmd/backend"
	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/query"
	"github.com/sig-0/vedollar/storage"
	"github.com/sig-0/vedollar/storage/types"
)

// convertCfg wraps the convert configuration
type convertCfg struct {
	source string
	at     string
	amount int64
}

// NewConvertCmd creates the convert subcommand
func NewConvertCmd() *ffcli.Command {
	cfg := &convertCfg{}

	fs := flag.NewFlagSet("convert", flag.ExitOnError)

	cmd := &ffcli.Command{
		Name:       "convert",
		ShortUsage: "convert <subcommand> [flags]",
		LongHelp:   "Converts a USD amount into Bs, using the latest known rate",
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
		Name:          "convert",
		LongHelp:      "Converts a USD amount into Bs, using the latest known rate",
		Backend:       &backend.Config{},
		Backends:      []backend.Kind{backend.KindSQL, backend.KindSQLite},
		RegisterFlags: cfg.registerFlags,
		Exec:          cfg.exec,
	}

	cmd.Subcommands = sub.Subcommands()

	return cmd
}

func (c *convertCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.source,
		"source",
		types.SourceBCV.String(),
		"the rate source (BCV, paralelo)",
	)

	fs.Int64Var(
		&c.amount,
		"amount",
		1,
		"the USD amount to convert",
	)

	fs.StringVar(
		&c.at,
		"at",
		"",
		"the RFC3339 point in time of the rate (default now)",
	)
}

func (c *convertCfg) exec(ctx context.Context, store storage.Storage, _ *slog.Logger, _ []string) error {
	source, err := types.ParseSource(c.source)
	if err != nil {
		return err
	}

	var at time.Time

	if c.at != "" {
		if at, err = time.Parse(time.RFC3339, c.at); err != nil {
			return fmt.Errorf("invalid time %q: %w", c.at, err)
		}
	}

	svc := query.New(store)

	o, err := svc.Latest(ctx, source, at)
	if err != nil {
		if errors.Is(err, query.ErrNoData) {
			fmt.Println("no data")

			return nil
		}

		return err
	}

	fmt.Printf(
		"Value for $%d based on %s at %s (%.4f):\tBs. %d\n",
		c.amount,
		source,
		o.Time.Format(time.RFC3339),
		o.Float(),
		query.Apply(c.amount, o.Rate),
	)

	return nil
}
