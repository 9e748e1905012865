package modelcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CacheFileName is the single JSON document holding all providers' entries.
const CacheFileName = "models_cache.json"

// FileBackend persists the cache as one JSON file in a configuration
// directory. The write is atomic (temp file + rename) so a concurrent
// reader never observes a half-written document.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{path: filepath.Join(dir, CacheFileName)}
}

// Path returns the cache file location.
func (b *FileBackend) Path() string { return b.path }

// Load reads the cache file. A missing file is an empty cache; corrupt or
// unreadable entries are dropped per provider rather than failing the load.
func (b *FileBackend) Load(_ context.Context) (map[string]Entry, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("model cache file is corrupt, treating as empty", "path", b.path, "error", err)
		return map[string]Entry{}, nil
	}

	entries := make(map[string]Entry, len(raw))
	for provider, blob := range raw {
		var entry Entry
		if err := json.Unmarshal(blob, &entry); err != nil {
			slog.Debug("skipping corrupt cache entry", "provider", provider, "error", err)
			continue
		}
		entries[provider] = entry
	}
	return entries, nil
}

// Save writes the full entry map atomically.
func (b *FileBackend) Save(_ context.Context, entries map[string]Entry) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Cleanup removes the cache file when its modification time exceeds ttl.
func (b *FileBackend) Cleanup(_ context.Context, ttl time.Duration) error {
	info, err := os.Stat(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if time.Since(info.ModTime()) > ttl {
		if err := os.Remove(b.path); err != nil {
			return err
		}
		slog.Debug("removed stale model cache file", "path", b.path)
	}
	return nil
}
