package worker

import (
	"fmt"
	"sync"
)

// AssetCache is one named generation of pre-fetched static assets.
type AssetCache struct {
	name    string
	entries map[string][]byte
}

func (c *AssetCache) Name() string {
	return c.name
}

func (c *AssetCache) Get(path string) ([]byte, bool) {
	body, ok := c.entries[path]
	return body, ok
}

func (c *AssetCache) Len() int {
	return len(c.entries)
}

// CacheSet holds every cache generation currently known. After activation
// exactly one generation remains.
type CacheSet struct {
	mu     sync.RWMutex
	caches map[string]*AssetCache
}

func NewCacheSet() *CacheSet {
	return &CacheSet{caches: make(map[string]*AssetCache)}
}

func (s *CacheSet) Put(cache *AssetCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[cache.name] = cache
}

func (s *CacheSet) Get(name string) (*AssetCache, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cache, ok := s.caches[name]
	return cache, ok
}

func (s *CacheSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	return names
}

// DeleteOthers removes every generation except keep, returning the deleted
// names.
func (s *CacheSet) DeleteOthers(keep string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted []string
	for name := range s.caches {
		if name != keep {
			delete(s.caches, name)
			deleted = append(deleted, name)
		}
	}
	return deleted
}

// BuildCache fetches every asset and returns a populated cache, or an error
// if any single fetch failed. Population is all-or-nothing.
func BuildCache(name string, assets []string, fetch Fetcher) (*AssetCache, error) {
	entries := make(map[string][]byte, len(assets))
	for _, path := range assets {
		body, err := fetch(path)
		if err != nil {
			return nil, fmt.Errorf("caching %s: %w", path, err)
		}
		entries[path] = body
	}
	return &AssetCache{name: name, entries: entries}, nil
}
