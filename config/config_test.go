package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateConfig(t *testing.T) {
	t.Parallel()

	t.Run("invalid listen address", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.ListenAddress = "rando-address" // doesn't follow the format

		assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidListenAddress)
	})

	t.Run("invalid BCV URL", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.BCV.URL = "/relative/path"

		assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidBCVURL)
	})

	t.Run("missing cache dir", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.BCV.CacheDir = ""

		assert.ErrorIs(t, ValidateConfig(cfg), ErrMissingCacheDir)
	})

	t.Run("invalid BCV timeout", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.BCV.Timeout = 0

		assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidTimeout)
	})

	t.Run("missing channel", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.Paralelo.Channel = ""

		assert.ErrorIs(t, ValidateConfig(cfg), ErrMissingChannel)
	})

	t.Run("invalid page size", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.Paralelo.PageSize = DefaultPageSize + 1

		assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidPageSize)
	})

	t.Run("invalid interval", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.Paralelo.Interval = -time.Hour

		assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidInterval)
	})

	t.Run("valid configuration", func(t *testing.T) {
		t.Parallel()

		assert.NoError(t, ValidateConfig(DefaultConfig()))
	})
}

func TestConfig_Read(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Read(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid TOML", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte("listen_address = "), 0o600))

		_, err := Read(path)
		assert.Error(t, err)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		t.Parallel()

		var (
			path    = filepath.Join(t.TempDir(), "config.toml")
			content = `
listen_address = "127.0.0.1:8080"

[bcv]
cache_dir = "/var/cache/vedollar"
timeout = "10s"

[paralelo]
channel = "another_channel"
page_size = 50
`
		)

		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := Read(path)
		require.NoError(t, err)

		defaults := DefaultConfig()

		assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddress)

		assert.Equal(t, "/var/cache/vedollar", cfg.BCV.CacheDir)
		assert.Equal(t, time.Second*10, cfg.BCV.Timeout)
		assert.Equal(t, defaults.BCV.URL, cfg.BCV.URL)
		assert.Equal(t, defaults.BCV.Interval, cfg.BCV.Interval)

		assert.Equal(t, "another_channel", cfg.Paralelo.Channel)
		assert.Equal(t, 50, cfg.Paralelo.PageSize)
		assert.Equal(t, defaults.Paralelo.Search, cfg.Paralelo.Search)

		assert.Equal(t, defaults.CORSConfig, cfg.CORSConfig)

		assert.NoError(t, ValidateConfig(cfg))
	})
}
