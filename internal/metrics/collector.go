package metrics

import (
	"os"
	"path/filepath"
	"time"

	"iptv-bridge/internal/logging"
)

// CacheCollector periodically walks the transcode cache root and updates
// the cache size gauges. Walking the cache is ordinary file I/O on a
// service-owned directory, so a coarse interval is sufficient.
type CacheCollector struct {
	cacheRoot string
	interval  time.Duration
	stopChan  chan struct{}
}

// NewCacheCollector creates a collector for the given cache root.
func NewCacheCollector(cacheRoot string, interval time.Duration) *CacheCollector {
	return &CacheCollector{
		cacheRoot: cacheRoot,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *CacheCollector) Start() {
	go c.collectLoop()
}

// Stop stops the collection loop.
func (c *CacheCollector) Stop() {
	close(c.stopChan)
}

func (c *CacheCollector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *CacheCollector) collect() {
	entries, err := os.ReadDir(c.cacheRoot)
	if err != nil {
		logging.Debug("Cache collector: failed to read cache root: %v", err)
		return
	}

	var totalSize int64
	dirCount := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirCount++
		totalSize += dirSize(filepath.Join(c.cacheRoot, entry.Name()))
	}

	CacheSizeBytes.Set(float64(totalSize))
	CacheSessionDirs.Set(float64(dirCount))

	logging.Debug("Cache metrics collected: dirs=%d, bytes=%d", dirCount, totalSize)
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
