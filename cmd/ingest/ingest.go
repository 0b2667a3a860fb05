package ingest

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/vedollar/cmd/backend"
	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/config"
	ingestpkg "github.com/sig-0/vedollar/ingest"
	"github.com/sig-0/vedollar/storage"
)

// ingestCfg wraps the ingest configuration
type ingestCfg struct {
	providers *backend.ProvidersConfig

	rebuild bool
}

// NewIngestCmd creates the ingest subcommand
func NewIngestCmd() *ffcli.Command {
	cfg := &ingestCfg{
		providers: &backend.ProvidersConfig{
			Config: config.DefaultConfig(),
		},
	}

	fs := flag.NewFlagSet("ingest", flag.ExitOnError)

	cmd := &ffcli.Command{
		Name:       "ingest",
		ShortUsage: "ingest <subcommand> [flags]",
		LongHelp:   "Runs a single ingestion pass over every selected source",
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
		Name:          "ingest",
		LongHelp:      "Runs a single ingestion pass over every selected source",
		Backend:       &backend.Config{},
		Backends:      []backend.Kind{backend.KindSQL, backend.KindSQLite},
		RegisterFlags: cfg.registerFlags,
		Exec:          cfg.exec,
	}

	cmd.Subcommands = sub.Subcommands()

	return cmd
}

func (c *ingestCfg) registerFlags(fs *flag.FlagSet) {
	c.providers.RegisterFlags(fs)

	fs.BoolVar(
		&c.rebuild,
		"rebuild",
		false,
		"clear all previous data (rates and cursors) before ingesting",
	)
}

func (c *ingestCfg) exec(ctx context.Context, store storage.Storage, logger *slog.Logger, _ []string) error {
	if err := c.providers.Load(); err != nil {
		return err
	}

	// Build the providers first, so missing credentials fail before any data is cleared
	providers, err := c.providers.Providers(logger)
	if err != nil {
		return err
	}

	if c.rebuild {
		if err = store.Clear(ctx); err != nil {
			return fmt.Errorf("unable to clear storage: %w", err)
		}

		logger.Info("cleared all stored data")
	}

	orchestrator := ingestpkg.New(store, ingestpkg.WithLogger(logger))

	for _, provider := range providers {
		if err = orchestrator.Register(provider); err != nil {
			return fmt.Errorf("unable to register provider: %w", err)
		}
	}

	return orchestrator.RunOnce(ctx)
}
