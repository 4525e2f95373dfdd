// Package imagecache binds a session to its most recent image bytes so a
// later edit command can pick them up without a re-upload. Bytes live in a
// TTL cache backed by a durable temp-file copy; a read that falls through
// to the file repopulates the cache.
package imagecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelbot/pixelbot/internal/expiry"
	"github.com/pixelbot/pixelbot/internal/logger"
)

// Archiver mirrors persisted images to durable object storage. Optional;
// archive failures never fail the primary operation.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

type Cache struct {
	mem       *expiry.Store[[]byte]
	lastPaths *expiry.Store[string]
	tempDir   string
	now       expiry.Clock
	archiver  Archiver
}

func New(ttl time.Duration, tempDir string, now expiry.Clock, archiver Archiver) (*Cache, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Cache{
		mem:       expiry.NewStore[[]byte](ttl, now),
		lastPaths: expiry.NewStore[string](0, now),
		tempDir:   tempDir,
		now:       now,
		archiver:  archiver,
	}, nil
}

// Remember stores bytes under the conversation key, and additionally under
// the raw sender id when it differs (group chats: the room is the
// conversation, the sender completes waiting flows).
func (c *Cache) Remember(key, userID string, data []byte) {
	c.mem.Put(key, data)
	if userID != "" && userID != key {
		c.mem.Put(userID, data)
	}
	logger.Debug("image cached", "session", key, "bytes", len(data))
}

// Recall returns the most recent image for the key. On a cache miss it
// falls back to the durable last-image file and repopulates the cache
// before returning.
func (c *Cache) Recall(key string) ([]byte, bool) {
	if data, ok := c.mem.Get(key); ok {
		return data, true
	}

	path, ok := c.lastPaths.Get(key)
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("last-image file unreadable", "session", key, "path", path, "error", err)
		return nil, false
	}

	c.mem.Put(key, data)
	logger.Info("image cache refilled from disk", "session", key, "path", path)
	return data, true
}

// Persist writes bytes to a uniquely named temp file, records it as the
// session's last image, and mirrors it to the archive when one is
// configured. Returns the file path.
func (c *Cache) Persist(ctx context.Context, key string, data []byte, prefix string) (string, error) {
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d_%s.png", prefix, c.now().Unix(), uuid.New().String()[:8])
	path := filepath.Join(c.tempDir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write temp image: %w", err)
	}

	c.lastPaths.Put(key, path)
	logger.Info("image persisted", "session", key, "path", path, "bytes", len(data))

	if c.archiver != nil {
		if err := c.archiver.Archive(ctx, name, data); err != nil {
			logger.Warn("archive upload failed", "name", name, "error", err)
		}
	}

	return path, nil
}

// LastPath returns the session's durable last-image path, if recorded.
func (c *Cache) LastPath(key string) (string, bool) {
	return c.lastPaths.Get(key)
}

// Forget drops both the in-memory bytes and the last-image pointer.
func (c *Cache) Forget(key string) {
	c.mem.Remove(key)
	c.lastPaths.Remove(key)
}

// Sweep evicts TTL-elapsed cache entries.
func (c *Cache) Sweep() int {
	return c.mem.Sweep()
}

// ReapTempFiles deletes temp images older than maxAge. Filenames are
// unique and files are never mutated after creation, so no locking is
// needed. Deletion failures are logged and swallowed.
func (c *Cache) ReapTempFiles(maxAge time.Duration) int {
	entries, err := os.ReadDir(c.tempDir)
	if err != nil {
		logger.Warn("temp dir unreadable", "dir", c.tempDir, "error", err)
		return 0
	}

	cutoff := c.now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(c.tempDir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("temp file removal failed", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("temp files reaped", "count", removed)
	}
	return removed
}
