package ves

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read(_ []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestCache(t *testing.T) {
	t.Parallel()

	t.Run("missing dir is empty", func(t *testing.T) {
		t.Parallel()

		cache := NewCache(filepath.Join(t.TempDir(), "missing"))

		files, err := cache.Files()
		require.NoError(t, err)

		assert.Empty(t, files)
		assert.False(t, cache.Has("a.xls"))
	})

	t.Run("write and list", func(t *testing.T) {
		t.Parallel()

		cache := NewCache(filepath.Join(t.TempDir(), "nested", "cache"))

		require.NoError(t, cache.Write("b.xls", strings.NewReader("b")))
		require.NoError(t, cache.Write("a.xls", strings.NewReader("a")))
		require.NoError(t, cache.Write("a.xls", strings.NewReader("a2")))

		files, err := cache.Files()
		require.NoError(t, err)

		assert.Equal(t, []string{
			filepath.Join(cache.Dir(), "a.xls"),
			filepath.Join(cache.Dir(), "b.xls"),
		}, files)

		contents, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Equal(t, "a2", string(contents))
	})

	t.Run("partial write keeps the cached copy", func(t *testing.T) {
		t.Parallel()

		cache := NewCache(t.TempDir())

		require.NoError(t, cache.Write("a.xls", strings.NewReader("original")))
		assert.Error(t, cache.Write("a.xls", failingReader{}))

		contents, err := os.ReadFile(filepath.Join(cache.Dir(), "a.xls"))
		require.NoError(t, err)
		assert.Equal(t, "original", string(contents))

		files, err := cache.Files()
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("skips directories and temp files", func(t *testing.T) {
		t.Parallel()

		cache := NewCache(t.TempDir())

		require.NoError(t, os.Mkdir(filepath.Join(cache.Dir(), "dir.xls"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(cache.Dir(), tempPrefix+"123"), []byte("x"), 0o600))
		require.NoError(t, cache.Write("c.xls", strings.NewReader("c")))

		files, err := cache.Files()
		require.NoError(t, err)

		assert.Equal(t, []string{filepath.Join(cache.Dir(), "c.xls")}, files)
		assert.False(t, cache.Has("dir.xls"))
	})
}
