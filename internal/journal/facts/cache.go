package facts

import (
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

type cacheEntry struct {
	Results   []PackageResult
	Installed bool
}

// CachingPackageInfo wraps a PackageInfo with an on-disk msgpack cache, so
// repeated rpm lookups across phases of the same run (and across daemon
// restarts sharing the same journal directory) don't each re-invoke the
// underlying package database. The cache is strictly advisory: any failure
// to read or write it just falls back to calling inner directly.
type CachingPackageInfo struct {
	inner PackageInfo
	path  string

	mu       sync.Mutex
	once     sync.Once
	entries  map[string]cacheEntry
	dirtyLen int
}

// NewCachingPackageInfo returns a PackageInfo backed by inner, persisting
// looked-up entries to path (conventionally .beakerlib-pkgcache.msgpack next
// to the journal).
func NewCachingPackageInfo(inner PackageInfo, path string) *CachingPackageInfo {
	return &CachingPackageInfo{inner: inner, path: path}
}

func (c *CachingPackageInfo) load() {
	c.entries = make(map[string]cacheEntry)
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	var onDisk map[string]cacheEntry
	if err := msgpack.Unmarshal(data, &onDisk); err != nil {
		return
	}
	c.entries = onDisk
}

func (c *CachingPackageInfo) Lookup(name string) ([]PackageResult, bool) {
	c.once.Do(c.load)

	c.mu.Lock()
	if e, ok := c.entries[name]; ok {
		c.mu.Unlock()
		return e.Results, e.Installed
	}
	c.mu.Unlock()

	results, installed := c.inner.Lookup(name)

	c.mu.Lock()
	c.entries[name] = cacheEntry{Results: results, Installed: installed}
	snapshot := make(map[string]cacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.Unlock()

	c.persist(snapshot)
	return results, installed
}

func (c *CachingPackageInfo) persist(snapshot map[string]cacheEntry) {
	if c.path == "" {
		return
	}
	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path, data, 0o644)
}
