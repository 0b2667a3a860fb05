package serve

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/vedollar/cmd/backend"
	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/config"
	"github.com/sig-0/vedollar/ingest"
	"github.com/sig-0/vedollar/metrics"
	"github.com/sig-0/vedollar/server"
	"github.com/sig-0/vedollar/storage"
)

// serveCfg wraps the serve configuration
type serveCfg struct {
	providers *backend.ProvidersConfig
	backend   *backend.Config

	listenAddress string
	noIngest      bool
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		providers: &backend.ProvidersConfig{
			Config: config.DefaultConfig(),
		},
		backend: &backend.Config{},
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	cmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve <subcommand> [flags]",
		LongHelp:   "Serves the rate query API, and runs the scheduled ingestion",
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
		Name:          "serve",
		LongHelp:      "Serves the rate query API, and runs the scheduled ingestion",
		Backend:       cfg.backend,
		Backends:      []backend.Kind{backend.KindSQL, backend.KindSQLite, backend.KindMemory},
		RegisterFlags: cfg.registerFlags,
		Exec:          cfg.exec,
	}

	cmd.Subcommands = sub.Subcommands()

	return cmd
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	c.providers.RegisterFlags(fs)

	fs.StringVar(
		&c.listenAddress,
		"listen",
		"",
		fmt.Sprintf("the IP:PORT URL for the server (default %s)", config.DefaultListenAddress),
	)

	fs.BoolVar(
		&c.noIngest,
		"no-ingest",
		false,
		"only serve the stored rates, without running the ingestion",
	)
}

// exec executes the serve command
func (c *serveCfg) exec(ctx context.Context, store storage.Storage, logger *slog.Logger, _ []string) error {
	// Read the configuration, if any
	if err := c.providers.Load(); err != nil {
		return err
	}

	cfg := c.providers.Config
	if c.listenAddress != "" {
		cfg.ListenAddress = c.listenAddress
	}

	// Set up the metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Create the ingestion service
	orchestrator := ingest.New(
		store,
		ingest.WithLogger(logger),
		ingest.WithMetrics(metrics.NewIngest(registry)),
	)

	if !c.noIngest {
		providers, err := c.providers.Providers(logger)
		if err != nil {
			return err
		}

		for _, provider := range providers {
			if err = orchestrator.Register(provider); err != nil {
				return fmt.Errorf("unable to register provider: %w", err)
			}
		}
	}

	// Create the server instance
	s, err := server.New(
		store,
		server.WithLogger(logger),
		server.WithConfig(cfg),
		server.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)
	if err != nil {
		return fmt.Errorf("unable to create server, %w", err)
	}

	runCtx, cancelFn := signal.NotifyContext(
		ctx,
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	defer cancelFn()

	group, gCtx := errgroup.WithContext(runCtx)

	// Start the HTTP server
	group.Go(func() error {
		return s.Serve(gCtx)
	})

	// Start the ingestion service
	if !c.noIngest {
		group.Go(func() error {
			return orchestrator.Start(gCtx)
		})
	}

	return group.Wait()
}
