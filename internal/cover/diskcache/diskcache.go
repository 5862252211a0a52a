// Package diskcache persists resolved cover images, one file per cache key.
// A file's mtime doubles as last-access time (refreshed on hit) and age
// (checked against the TTL). Eviction is LRU by mtime once the file count
// exceeds the cap plus slack.
package diskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	fileExt      = ".img"
	dirPerm      = 0o750
	filePerm     = 0o600
	lockFileName = ".evict.lock"
)

// Options configures a Cache. Zero values fall back to defaults.
type Options struct {
	TTL        time.Duration // entry lifetime measured from mtime
	MaxEntries int           // target file count after eviction
	Slack      int           // extra files tolerated before eviction triggers
	Cooldown   time.Duration // minimum gap between automatic eviction runs
}

func (o *Options) applyDefaults() {
	if o.TTL <= 0 {
		o.TTL = 30 * 24 * time.Hour
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = 512
	}
	if o.Slack <= 0 {
		o.Slack = 32
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 5 * time.Minute
	}
}

// Stats summarizes the on-disk state of the cache.
type Stats struct {
	Entries    int
	TotalBytes int64
	Oldest     time.Time
}

// Cache is a TTL- and count-bounded store of image files in one directory.
type Cache struct {
	dir  string
	opts Options

	mu       sync.Mutex
	evicting bool
	rerun    bool
	lastRun  time.Time

	now func() time.Time
	// onEvictDone is invoked after each eviction run finishes; tests use it
	// to synchronize with the background goroutine.
	onEvictDone func()
}

// New creates a disk cache rooted at dir, creating the directory if needed.
func New(dir string, opts Options) (*Cache, error) {
	opts.applyDefaults()
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:  dir,
		opts: opts,
		now:  time.Now,
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the on-disk location for a key, whether or not it exists.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+fileExt)
}

// Read returns the path of a live cached image for key. A hit refreshes the
// file's mtime (sliding expiry); an entry older than the TTL is deleted and
// reported as a miss.
func (c *Cache) Read(key string) (string, bool) {
	path := c.Path(key)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}

	now := c.now()
	if now.Sub(info.ModTime()) > c.opts.TTL {
		_ = os.Remove(path)
		return "", false
	}

	// Refresh last-access; a failure here only ages the entry early.
	_ = os.Chtimes(path, now, now)
	return path, true
}

// Write stores image bytes for key via a temp file and atomic rename, then
// schedules a non-blocking eviction pass.
func (c *Cache) Write(key string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to cache empty image for key %s", key)
	}
	if err := os.MkdirAll(c.dir, dirPerm); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	finalPath := c.Path(key)
	// Unique temp name so two concurrent writers of the same key never
	// stomp each other's partial file before the rename.
	tempPath := finalPath + ".tmp-" + uuid.NewString()

	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("finalize cache file: %w", err)
	}

	c.ScheduleEviction(false)
	return finalPath, nil
}

// WriteFrom copies an existing file into the cache under key.
func (c *Cache) WriteFrom(key, srcPath string) (string, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("read source image: %w", err)
	}
	return c.Write(key, data)
}

// Remove deletes the cached file for key, if present.
func (c *Cache) Remove(key string) {
	_ = os.Remove(c.Path(key))
}

// ScheduleEviction starts an eviction pass in the background. Runs are
// coalesced: if one is already in flight the rerun flag is set instead of
// starting a second, and a cooldown window suppresses automatic re-triggering.
// force bypasses the cooldown (shutdown cleanup, explicit CLI request).
func (c *Cache) ScheduleEviction(force bool) {
	c.mu.Lock()
	if c.evicting {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	if !force && c.now().Sub(c.lastRun) < c.opts.Cooldown {
		c.mu.Unlock()
		return
	}
	c.evicting = true
	c.mu.Unlock()

	go c.evictLoop()
}

func (c *Cache) evictLoop() {
	for {
		c.evictOnce()

		c.mu.Lock()
		c.lastRun = c.now()
		if c.rerun {
			c.rerun = false
			c.mu.Unlock()
			continue
		}
		c.evicting = false
		done := c.onEvictDone
		c.mu.Unlock()

		if done != nil {
			done()
		}
		return
	}
}

// Evict runs one synchronous eviction pass, deleting the oldest files until
// the count is at or below MaxEntries. Below MaxEntries+Slack it is a no-op.
// The pass is serialized across processes with a lock file so two engines
// sharing a cache directory do not race over deletions.
func (c *Cache) Evict() {
	c.evictOnce()
	c.mu.Lock()
	c.lastRun = c.now()
	c.mu.Unlock()
}

func (c *Cache) evictOnce() {
	lock := flock.New(filepath.Join(c.dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		// Another process is already evicting this directory.
		return
	}
	defer func() { _ = lock.Unlock() }()

	files := c.listEntries()
	if len(files) <= c.opts.MaxEntries+c.opts.Slack {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	excess := len(files) - c.opts.MaxEntries
	for _, f := range files[:excess] {
		_ = os.Remove(f.path)
	}
}

type cacheFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Cache) listEntries() []cacheFile {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}

	files := make([]cacheFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheFile{
			path:    filepath.Join(c.dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return files
}

// Stats reports the current entry count, total size and oldest mtime.
func (c *Cache) Stats() Stats {
	files := c.listEntries()
	stats := Stats{Entries: len(files)}
	for _, f := range files {
		stats.TotalBytes += f.size
		if stats.Oldest.IsZero() || f.modTime.Before(stats.Oldest) {
			stats.Oldest = f.modTime
		}
	}
	return stats
}

// Purge deletes every cached image file.
func (c *Cache) Purge() {
	for _, f := range c.listEntries() {
		_ = os.Remove(f.path)
	}
}
