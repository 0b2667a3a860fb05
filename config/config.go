package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefaultListenAddress = "0.0.0.0:8545"
	DefaultBCVURL        = "https://www.bcv.org.ve/estadisticas/tipo-cambio-de-referencia-smc"
	DefaultChannel       = "enparalelovzlatelegram"
	DefaultSearch        = "Bs."
	DefaultPageSize      = 100
)

var (
	ErrInvalidListenAddress = errors.New("invalid listen address")
	ErrInvalidBCVURL        = errors.New("invalid BCV index URL")
	ErrInvalidTimeout       = errors.New("invalid timeout")
	ErrInvalidInterval      = errors.New("invalid interval")
	ErrMissingCacheDir      = errors.New("missing cache dir")
	ErrMissingChannel       = errors.New("missing channel")
	ErrInvalidPageSize      = errors.New("invalid page size")
)

var listenAddressRegex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}:\d+$`)

// Config defines the base-level service configuration
type Config struct {
	// The associated CORS config, if any
	CORSConfig *CORS `toml:"cors_config"`

	// The BCV workbook provider config
	BCV BCV `toml:"bcv"`

	// The paralelo channel provider config
	Paralelo Paralelo `toml:"paralelo"`

	// The address at which the server will be served.
	// Format should be: <IP>:<PORT>
	ListenAddress string `toml:"listen_address"`
}

// CORS defines the server CORS configuration
type CORS struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	AllowedMethods []string `toml:"allowed_methods"`
	AllowedHeaders []string `toml:"allowed_headers"`
}

// BCV defines the BCV workbook provider configuration
type BCV struct {
	// The statistics index (first page)
	URL string `toml:"url"`

	// The local workbook cache directory
	CacheDir string `toml:"cache_dir"`

	// Per-request timeout
	Timeout time.Duration `toml:"timeout"`

	// Ingestion interval
	Interval time.Duration `toml:"interval"`
}

// Paralelo defines the paralelo channel provider configuration
type Paralelo struct {
	// The public channel username
	Channel string `toml:"channel"`

	// The message text filter
	Search string `toml:"search"`

	// The client session file
	SessionFile string `toml:"session_file"`

	// Messages requested per listing page
	PageSize int `toml:"page_size"`

	// Delay between listing pages
	PageWait time.Duration `toml:"page_wait"`

	// Ingestion interval
	Interval time.Duration `toml:"interval"`
}

// DefaultCORSConfig returns the default CORS configuration
func DefaultCORSConfig() *CORS {
	return &CORS{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}
}

// DefaultDataDir returns the local data directory (cache, sessions)
func DefaultDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".vedollar"
	}

	return filepath.Join(dir, "vedollar")
}

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		ListenAddress: DefaultListenAddress,
		CORSConfig:    DefaultCORSConfig(),
		BCV: BCV{
			URL:      DefaultBCVURL,
			CacheDir: filepath.Join(dataDir, "bcv"),
			Timeout:  time.Second * 30,
			Interval: time.Hour * 24,
		},
		Paralelo: Paralelo{
			Channel:     DefaultChannel,
			Search:      DefaultSearch,
			SessionFile: filepath.Join(dataDir, "telegram.session"),
			PageSize:    DefaultPageSize,
			PageWait:    time.Second,
			Interval:    time.Hour,
		},
	}
}

// ValidateConfig validates the service configuration
func ValidateConfig(config *Config) error {
	// Validate the listen address
	if !listenAddressRegex.MatchString(config.ListenAddress) {
		return ErrInvalidListenAddress
	}

	if err := validateBCV(&config.BCV); err != nil {
		return fmt.Errorf("bcv: %w", err)
	}

	if err := validateParalelo(&config.Paralelo); err != nil {
		return fmt.Errorf("paralelo: %w", err)
	}

	return nil
}

func validateBCV(c *BCV) error {
	u, err := url.Parse(c.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidBCVURL
	}

	if c.CacheDir == "" {
		return ErrMissingCacheDir
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Interval <= 0 {
		return ErrInvalidInterval
	}

	return nil
}

func validateParalelo(c *Paralelo) error {
	if c.Channel == "" {
		return ErrMissingChannel
	}

	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		return ErrInvalidPageSize
	}

	if c.PageWait < 0 {
		return ErrInvalidTimeout
	}

	if c.Interval <= 0 {
		return ErrInvalidInterval
	}

	return nil
}

// Read reads the configuration from the given path.
// Values missing from the file keep their defaults
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	var cfg Config

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills every unset value with its default
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaults.ListenAddress
	}

	if cfg.CORSConfig == nil {
		cfg.CORSConfig = defaults.CORSConfig
	}

	setDefault(&cfg.BCV.URL, defaults.BCV.URL)
	setDefault(&cfg.BCV.CacheDir, defaults.BCV.CacheDir)
	setDefault(&cfg.BCV.Timeout, defaults.BCV.Timeout)
	setDefault(&cfg.BCV.Interval, defaults.BCV.Interval)

	setDefault(&cfg.Paralelo.Channel, defaults.Paralelo.Channel)
	setDefault(&cfg.Paralelo.Search, defaults.Paralelo.Search)
	setDefault(&cfg.Paralelo.SessionFile, defaults.Paralelo.SessionFile)
	setDefault(&cfg.Paralelo.PageSize, defaults.Paralelo.PageSize)
	setDefault(&cfg.Paralelo.PageWait, defaults.Paralelo.PageWait)
	setDefault(&cfg.Paralelo.Interval, defaults.Paralelo.Interval)
}

func setDefault[T comparable](v *T, def T) {
	var zero T

	if *v == zero {
		*v = def
	}
}
