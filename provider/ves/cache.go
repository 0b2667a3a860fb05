package ves

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const tempPrefix = ".download-"

// Cache is the local workbook cache directory
type Cache struct {
	dir string
}

// NewCache creates a new workbook cache rooted at the given directory
func NewCache(dir string) *Cache {
	return &Cache{
		dir: dir,
	}
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Has checks if the named workbook is cached
func (c *Cache) Has(name string) bool {
	info, err := os.Stat(filepath.Join(c.dir, name))

	return err == nil && info.Mode().IsRegular()
}

// Write atomically caches the workbook read from r under the given name
func (c *Cache) Write(name string, r io.Reader) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("unable to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("unable to create cache file: %w", err)
	}

	// Partial downloads never replace a cached workbook
	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("unable to write cache file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("unable to close cache file: %w", err)
	}

	if err = os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("unable to move cache file: %w", err)
	}

	return nil
}

// Files lists the cached workbook paths, sorted by name.
// A missing cache directory is an empty cache
func (c *Cache) Files() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}

		files = append(files, filepath.Join(c.dir, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}
