package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

type cachedArtifact struct {
	artifact *Artifact
	modTime  time.Time
	size     int64
}

// ArtifactCache is a read-through cache of validated artifacts keyed by
// absolute path. Each lookup re-stats the file and reloads it when its
// modification time or size changed; Watch adds eager eviction through
// fsnotify. Cached artifacts are never mutated, so callers may share them.
type ArtifactCache struct {
	schema  Schema
	entries *lru.Cache[string, *cachedArtifact]
	logger  *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]bool
	done    chan struct{}
}

func NewArtifactCache(size int, schema Schema, logger *zap.Logger) (*ArtifactCache, error) {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := lru.New[string, *cachedArtifact](size)
	if err != nil {
		return nil, err
	}
	return &ArtifactCache{
		schema:  schema,
		entries: entries,
		logger:  logger,
		dirs:    make(map[string]bool),
	}, nil
}

// Get returns the artifact at path, loading it on first use or when the file
// changed since it was cached.
func (c *ArtifactCache) Get(path string) (*Artifact, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(key)
	if err != nil {
		c.entries.Remove(key)
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ArtifactNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat artifact: %w", err)
	}

	if entry, ok := c.entries.Get(key); ok {
		if entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
			return entry.artifact, nil
		}
		c.logger.Info("artifact changed on disk, reloading", zap.String("path", key))
	}

	artifact, err := LoadPipeline(key, c.schema)
	if err != nil {
		var notFound *ArtifactNotFoundError
		if errors.As(err, &notFound) {
			return nil, &ArtifactNotFoundError{Path: path}
		}
		return nil, err
	}
	c.entries.Add(key, &cachedArtifact{artifact: artifact, modTime: info.ModTime(), size: info.Size()})
	c.logger.Debug("artifact loaded", zap.String("path", key), zap.String("run_id", artifact.RunID))
	return artifact, nil
}

// Invalidate drops the cached artifact for path.
func (c *ArtifactCache) Invalidate(path string) {
	key, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if c.entries.Remove(key) {
		c.logger.Info("artifact evicted", zap.String("path", key))
	}
}

// Purge drops every cached artifact.
func (c *ArtifactCache) Purge() {
	c.entries.Purge()
}

func (c *ArtifactCache) Len() int {
	return c.entries.Len()
}

// Watch evicts path from the cache whenever it is written, replaced or
// removed. The parent directory is watched so that atomic renames are seen.
func (c *ArtifactCache) Watch(path string) error {
	key, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		c.watcher = watcher
		c.done = make(chan struct{})
		go c.watchLoop(watcher, c.done)
	}
	if c.dirs[dir] {
		return nil
	}
	if err := c.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	c.dirs[dir] = true
	return nil
}

func (c *ArtifactCache) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				c.Invalidate(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// Close stops watching. The cache stays usable with stat-based checks.
func (c *ArtifactCache) Close() error {
	c.mu.Lock()
	watcher, done := c.watcher, c.done
	c.watcher, c.done = nil, nil
	c.dirs = make(map[string]bool)
	c.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}
