// Package cache implements the artifact cache: a content-addressed local
// store, a pluggable remote client, and a sqlite-backed metadata index
// recording each artifact's embedded strong key.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"forge/internal/cachekey"
	"forge/internal/logging"
)

// Handle is an open artifact blob. Callers must Close it.
type Handle interface {
	io.ReadCloser
}

// LocalCAS is the local content-addressed store contract the core
// consumes: contains/open/put by key.
type LocalCAS interface {
	Contains(key cachekey.Key) bool
	Open(key cachekey.Key) (Handle, error)
	Put(key cachekey.Key, blob io.Reader) error
}

// FSCas is a LocalCAS backed by a flat directory of files named by key.
// Writes are staged to a temp file in the same directory and renamed
// into place, so a reader never observes a partially written blob.
type FSCas struct {
	dir string
}

// NewFSCas creates (if needed) dir and returns a LocalCAS rooted there.
func NewFSCas(dir string) (*FSCas, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create CAS dir: %w", err)
	}
	return &FSCas{dir: dir}, nil
}

func (c *FSCas) path(key cachekey.Key) string {
	return filepath.Join(c.dir, string(key))
}

// Contains reports whether key's blob is present locally.
func (c *FSCas) Contains(key cachekey.Key) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// Open returns a readable handle onto key's blob.
func (c *FSCas) Open(key cachekey.Key) (Handle, error) {
	f, err := os.Open(c.path(key))
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", key, err)
	}
	return f, nil
}

// Put stores blob under key via stage-then-rename, so concurrent readers
// never see a truncated file.
func (c *FSCas) Put(key cachekey.Key, blob io.Reader) error {
	tmp, err := os.CreateTemp(c.dir, ".staging-*")
	if err != nil {
		return fmt.Errorf("cache: create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, blob); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: stage blob for %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: sync staging file for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close staging file for %s: %w", key, err)
	}

	if err := os.Rename(tmpPath, c.path(key)); err != nil {
		return fmt.Errorf("cache: rename staging file into place for %s: %w", key, err)
	}
	logging.Get(logging.CategoryCache).Debug("stored artifact %s", key)
	return nil
}
