package worldarchive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// thumbnailCache keeps rendered thumbnails on disk. Renders of the same
// source are serialized; renders of different sources run in parallel.
type thumbnailCache struct {
	mu    sync.Mutex
	items map[string]*thumbnailItem

	dir     string
	width   int
	idle    time.Duration
	resizer Resizer
	log     *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type thumbnailItem struct {
	mu         sync.Mutex // held while rendering
	path       string
	lastAccess time.Time
	ready      bool
}

func newThumbnailCache(dir string, width int, idle time.Duration, resizer Resizer, log *slog.Logger) *thumbnailCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &thumbnailCache{
		items:   make(map[string]*thumbnailItem),
		dir:     dir,
		width:   width,
		idle:    idle,
		resizer: resizer,
		log:     log,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// get returns the path of the rendered thumbnail for src, rendering it on the
// first request. The key includes modTime so an edited image is re-rendered.
func (c *thumbnailCache) get(src string, modTime time.Time) (string, error) {
	key := getMD5Hash(fmt.Sprintf("%s:%d:%d", src, modTime.UnixNano(), c.width))

	c.mu.Lock()
	item, exists := c.items[key]
	if !exists {
		item = &thumbnailItem{path: filepath.Join(c.dir, key+".jpg")}
		c.items[key] = item
	}
	item.lastAccess = c.now()
	c.mu.Unlock()

	item.mu.Lock()
	defer item.mu.Unlock()
	if item.ready {
		return item.path, nil
	}

	if err := c.render(src, item.path); err != nil {
		c.mu.Lock()
		if c.items[key] == item {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return "", err
	}
	item.ready = true
	return item.path, nil
}

func (c *thumbnailCache) render(src, dst string) error {
	if err := os.MkdirAll(c.dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	data, err := c.resizer.Thumbnail(src, c.width)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", filepath.Base(src), err)
	}

	tmp, err := os.CreateTemp(c.dir, ".thumb-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

// cleanup drops thumbnails nobody asked for within the idle timeout.
func (c *thumbnailCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if c.now().Sub(item.lastAccess) <= c.idle {
			continue
		}
		if err := os.Remove(item.path); err != nil && !os.IsNotExist(err) {
			c.log.Warn("failed to remove thumbnail", slog.String("path", item.path), slog.Any("error", err))
		}
		delete(c.items, key)
		removed++
	}
	return removed
}

func (c *thumbnailCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if n := c.cleanup(); n > 0 {
				c.log.Debug("removed idle thumbnails", slog.Int("count", n))
			}
		}
	}
}

func (c *thumbnailCache) Close() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
}
