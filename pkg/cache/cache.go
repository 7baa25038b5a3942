package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/metrics"
)

const (
	// DefaultMaxEntries bounds how many unreferenced environments are
	// kept before the oldest are evicted.
	DefaultMaxEntries = 20

	// DefaultMaxAge evicts environments older than this regardless of
	// the entry count.
	DefaultMaxAge = 24 * time.Hour

	// DepsFileName marks a directory as a cached environment and
	// records the dependency list it was built from.
	DepsFileName = ".deps"

	// metaFileName carries entry timestamps across processes.
	metaFileName = ".meta.json"

	// LinkName is the path inside a sandbox pointing at its cached
	// environment.
	LinkName = ".env"
)

// Entry is one cached dependency environment.
type Entry struct {
	Hash      string
	Dir       string
	Deps      []string
	CreatedAt time.Time
	LastUsed  time.Time
	RefCount  int
}

type entryMeta struct {
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Stats is a snapshot of cache state for inspection.
type Stats struct {
	Entries    int
	MaxEntries int
	Hits       int
	Misses     int
	Evictions  int
	List       []EntryInfo
}

// EntryInfo describes one entry in a Stats snapshot.
type EntryInfo struct {
	Hash     string
	DepCount int
	AgeHours float64
	RefCount int
}

// Cache shares prepared dependency environments between sandboxes.
// Two services declaring the same dependency set (regardless of order,
// case, or surrounding whitespace) resolve to the same directory.
type Cache struct {
	mu         sync.Mutex
	root       string
	entries    map[string]*Entry
	maxEntries int
	maxAge     time.Duration
	hits       int
	misses     int
	evictions  int
	logger     zerolog.Logger

	// now is replaceable for eviction tests.
	now func() time.Time
}

// New opens the cache under <sandboxRoot>/.cache/envs, adopting any
// environments left by earlier processes.
func New(sandboxRoot string) (*Cache, error) {
	c := &Cache{
		root:       filepath.Join(sandboxRoot, ".cache", "envs"),
		entries:    make(map[string]*Entry),
		maxEntries: DefaultMaxEntries,
		maxAge:     DefaultMaxAge,
		logger:     log.WithComponent("cache"),
		now:        time.Now,
	}
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache root: %v", errdefs.ErrInternal, err)
	}
	if err := c.scan(); err != nil {
		return nil, err
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return c, nil
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

// HashDeps derives the cache key for a dependency list: deps are
// trimmed, lowercased and sorted before hashing, so declaration order
// and formatting do not fragment the cache. The key is the first 16
// hex characters of the SHA-256.
func HashDeps(deps []string) string {
	normalized := make([]string, 0, len(deps))
	for _, dep := range deps {
		if d := strings.ToLower(strings.TrimSpace(dep)); d != "" {
			normalized = append(normalized, d)
		}
	}
	sort.Strings(normalized)
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\n")))
	return hex.EncodeToString(sum[:])[:16]
}

// GetOrCreate returns the environment for deps, creating the directory
// on first use. The returned entry is reference-counted until Release.
func (c *Cache) GetOrCreate(deps []string) (*Entry, error) {
	hash := HashDeps(deps)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[hash]; ok {
		entry.RefCount++
		entry.LastUsed = c.now()
		c.hits++
		metrics.CacheEvents.WithLabelValues("hit").Inc()
		if err := c.writeMeta(entry); err != nil {
			c.logger.Warn().Err(err).Str("hash", hash).Msg("Failed to update cache metadata")
		}
		c.logger.Debug().Str("hash", hash).Int("refs", entry.RefCount).Msg("Cache hit")
		return entry.snapshot(), nil
	}

	dir := filepath.Join(c.root, hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create env dir: %v", errdefs.ErrInternal, err)
	}
	if err := os.WriteFile(filepath.Join(dir, DepsFileName), []byte(strings.Join(deps, "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("%w: write deps marker: %v", errdefs.ErrInternal, err)
	}

	entry := &Entry{
		Hash:      hash,
		Dir:       dir,
		Deps:      append([]string(nil), deps...),
		CreatedAt: c.now(),
		LastUsed:  c.now(),
		RefCount:  1,
	}
	if err := c.writeMeta(entry); err != nil {
		return nil, err
	}
	c.entries[hash] = entry
	c.misses++
	metrics.CacheEvents.WithLabelValues("miss").Inc()
	c.logger.Info().Str("hash", hash).Int("deps", len(deps)).Msg("Created dependency environment")

	c.evictLocked()
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return entry.snapshot(), nil
}

// Release drops one reference to the environment identified by hash.
// The count never goes below zero; unknown hashes are ignored.
func (c *Cache) Release(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[hash]
	if !ok {
		return
	}
	if entry.RefCount > 0 {
		entry.RefCount--
	}
	c.logger.Debug().Str("hash", hash).Int("refs", entry.RefCount).Msg("Released environment reference")
}

// Link points sandboxPath/.env at the cached environment. Symlinks are
// preferred; filesystems that refuse them get a copy.
func (c *Cache) Link(entry *Entry, sandboxPath string) error {
	target := filepath.Join(sandboxPath, LinkName)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("%w: clear env link: %v", errdefs.ErrInternal, err)
	}
	if err := os.Symlink(entry.Dir, target); err == nil {
		return nil
	}
	if err := copyTree(entry.Dir, target); err != nil {
		return fmt.Errorf("%w: copy environment: %v", errdefs.ErrInternal, err)
	}
	return nil
}

// Stats returns a snapshot, newest entries first.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
	for _, entry := range c.entries {
		stats.List = append(stats.List, EntryInfo{
			Hash:     entry.Hash,
			DepCount: len(entry.Deps),
			AgeHours: c.now().Sub(entry.CreatedAt).Hours(),
			RefCount: entry.RefCount,
		})
	}
	sort.Slice(stats.List, func(i, j int) bool { return stats.List[i].AgeHours < stats.List[j].AgeHours })
	return stats
}

// Prune applies the eviction policy immediately and reports how many
// entries were removed.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.evictions
	c.evictLocked()
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return c.evictions - before
}

// Clear removes every unreferenced environment and reports how many
// were removed. In-use environments survive.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for hash, entry := range c.entries {
		if entry.RefCount > 0 {
			continue
		}
		c.removeLocked(hash, entry)
		removed++
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed
}

// snapshot copies an entry so callers cannot mutate cache state.
func (e *Entry) snapshot() *Entry {
	cp := *e
	cp.Deps = append([]string(nil), e.Deps...)
	return &cp
}

// scan adopts environment directories left on disk, restoring their
// dependency lists and timestamps. Reference counts start at zero: no
// sandbox of this process is using them yet.
func (c *Cache) scan() error {
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("%w: scan cache: %v", errdefs.ErrInternal, err)
	}
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(c.root, de.Name())
		depsRaw, err := os.ReadFile(filepath.Join(dir, DepsFileName))
		if err != nil {
			continue // not a cache entry
		}
		entry := &Entry{
			Hash: de.Name(),
			Dir:  dir,
		}
		for _, line := range strings.Split(strings.TrimRight(string(depsRaw), "\n"), "\n") {
			if line != "" {
				entry.Deps = append(entry.Deps, line)
			}
		}
		var meta entryMeta
		if data, err := os.ReadFile(filepath.Join(dir, metaFileName)); err == nil {
			_ = json.Unmarshal(data, &meta)
		}
		entry.CreatedAt = meta.CreatedAt
		entry.LastUsed = meta.LastUsed
		if entry.CreatedAt.IsZero() {
			if info, err := de.Info(); err == nil {
				entry.CreatedAt = info.ModTime()
			} else {
				entry.CreatedAt = c.now()
			}
		}
		if entry.LastUsed.IsZero() {
			entry.LastUsed = entry.CreatedAt
		}
		c.entries[entry.Hash] = entry
	}
	return nil
}

func (c *Cache) writeMeta(entry *Entry) error {
	meta := entryMeta{CreatedAt: entry.CreatedAt, LastUsed: entry.LastUsed}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: marshal cache metadata: %v", errdefs.ErrInternal, err)
	}
	if err := os.WriteFile(filepath.Join(entry.Dir, metaFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: write cache metadata: %v", errdefs.ErrInternal, err)
	}
	return nil
}

// evictLocked removes expired entries, then the oldest until the count
// fits. Entries still referenced by a sandbox are never removed, so
// the cache can temporarily exceed its limit under load.
func (c *Cache) evictLocked() {
	cutoff := c.now().Add(-c.maxAge)
	for hash, entry := range c.entries {
		if entry.RefCount == 0 && entry.CreatedAt.Before(cutoff) {
			c.removeLocked(hash, entry)
		}
	}

	for len(c.entries) > c.maxEntries {
		var oldest *Entry
		for _, entry := range c.entries {
			if entry.RefCount > 0 {
				continue
			}
			if oldest == nil || entry.CreatedAt.Before(oldest.CreatedAt) {
				oldest = entry
			}
		}
		if oldest == nil {
			return
		}
		c.removeLocked(oldest.Hash, oldest)
	}
}

func (c *Cache) removeLocked(hash string, entry *Entry) {
	if err := os.RemoveAll(entry.Dir); err != nil {
		c.logger.Warn().Err(err).Str("hash", hash).Msg("Failed to remove environment directory")
	}
	delete(c.entries, hash)
	c.evictions++
	metrics.CacheEvents.WithLabelValues("evict").Inc()
	c.logger.Debug().Str("hash", hash).Msg("Evicted dependency environment")
}

// copyTree copies src into dst recursively, preserving file modes.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
