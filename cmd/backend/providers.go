package backend

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sig-0/vedollar/cmd/env"
	"github.com/sig-0/vedollar/config"
	"github.com/sig-0/vedollar/ingest"
	"github.com/sig-0/vedollar/provider/telegram"
	"github.com/sig-0/vedollar/provider/ves"
	"github.com/sig-0/vedollar/storage/types"
)

// ProvidersConfig selects and configures the ingestion providers
type ProvidersConfig struct {
	Config *config.Config

	ConfigPath string
	Sources    string
}

// RegisterFlags registers the provider selection flags
func (c *ProvidersConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.ConfigPath,
		"config",
		"",
		"the path to the TOML configuration, if any",
	)

	fs.StringVar(
		&c.Sources,
		"sources",
		strings.Join([]string{types.SourceBCV.String(), types.SourceParalelo.String()}, ","),
		"the comma separated sources to ingest",
	)
}

// Load reads the configuration file, if any
func (c *ProvidersConfig) Load() error {
	if c.ConfigPath == "" {
		return config.ValidateConfig(c.Config)
	}

	cfg, err := config.Read(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("unable to read config, %w", err)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config, %w", err)
	}

	c.Config = cfg

	return nil
}

// Providers builds the selected ingestion providers.
// Channel credentials are checked before anything touches the network
func (c *ProvidersConfig) Providers(logger *slog.Logger) ([]ingest.Provider, error) {
	var providers []ingest.Provider

	for _, raw := range strings.Split(c.Sources, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		source, err := types.ParseSource(raw)
		if err != nil {
			return nil, err
		}

		switch source {
		case types.SourceBCV:
			bcv := c.Config.BCV

			providers = append(providers, ves.NewBCVProvider(
				bcv.URL,
				ves.NewCache(bcv.CacheDir),
				bcv.Timeout,
				ves.WithBCVLogger(logger.With("provider", "BCV")),
				ves.WithBCVInterval(bcv.Interval),
			))
		case types.SourceParalelo:
			paralelo := c.Config.Paralelo

			creds, err := telegram.ParseCredentials(
				os.Getenv(env.Prefix+env.TGIDSuffix),
				os.Getenv(env.Prefix+env.TGHashSuffix),
			)
			if err != nil {
				return nil, fmt.Errorf(
					"invalid channel credentials (%s, %s): %w",
					env.Prefix+env.TGIDSuffix,
					env.Prefix+env.TGHashSuffix,
					err,
				)
			}

			reader, err := telegram.New(
				creds,
				paralelo.SessionFile,
				telegram.WithLogger(logger.With("provider", "telegram")),
				telegram.WithPageSize(paralelo.PageSize),
				telegram.WithPageWait(paralelo.PageWait),
			)
			if err != nil {
				return nil, fmt.Errorf("unable to create channel reader: %w", err)
			}

			providers = append(providers, ves.NewParaleloProvider(
				reader,
				ves.WithParaleloLogger(logger.With("provider", "paralelo")),
				ves.WithParaleloChannel(paralelo.Channel, paralelo.Search),
				ves.WithParaleloInterval(paralelo.Interval),
			))
		}
	}

	return providers, nil
}
