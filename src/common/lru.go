package common

import (
	lru "github.com/hashicorp/golang-lru"
)

// CacheMap is a bounded insertion/recency-ordered map keyed by string hash.
// It evicts the least-recently-used entry once Capacity is exceeded. It backs
// vote_to_object, invalid_votes and similar recent-history trackers that exist
// purely to bound memory growth, per the design notes on CacheMap/
// CacheMultiMap: any bounded LRU satisfies the contract.
type CacheMap struct {
	cache *lru.Cache
}

// NewCacheMap creates a CacheMap with the given capacity.
func NewCacheMap(capacity int) *CacheMap {
	c, _ := lru.New(capacity)
	return &CacheMap{cache: c}
}

// Add inserts or updates key, evicting the oldest entry if the map is full.
func (m *CacheMap) Add(key string, value interface{}) {
	m.cache.Add(key, value)
}

// Get returns the value stored for key, if any.
func (m *CacheMap) Get(key string) (interface{}, bool) {
	return m.cache.Get(key)
}

// Contains reports whether key is present, without affecting recency.
func (m *CacheMap) Contains(key string) bool {
	return m.cache.Contains(key)
}

// Remove deletes key from the map.
func (m *CacheMap) Remove(key string) {
	m.cache.Remove(key)
}

// Keys returns all keys currently held, oldest first.
func (m *CacheMap) Keys() []string {
	raw := m.cache.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

// Len returns the number of entries currently held.
func (m *CacheMap) Len() int {
	return m.cache.Len()
}

// CacheMultiMap is a bounded map from a string key to a set of string values,
// used by orphan_votes (parent hash -> parked vote hashes). The bound applies
// to the number of distinct keys; values are unbounded per key since a parent
// object rarely accumulates more than a handful of orphaned votes.
type CacheMultiMap struct {
	cache *lru.Cache
}

// NewCacheMultiMap creates a CacheMultiMap with the given key capacity.
func NewCacheMultiMap(capacity int) *CacheMultiMap {
	c, _ := lru.New(capacity)
	return &CacheMultiMap{cache: c}
}

// Put appends value to the set stored under key.
func (m *CacheMultiMap) Put(key string, value string) {
	existing, ok := m.cache.Get(key)
	if !ok {
		m.cache.Add(key, []string{value})
		return
	}
	values := existing.([]string)
	for _, v := range values {
		if v == value {
			return
		}
	}
	m.cache.Add(key, append(values, value))
}

// Get returns the set of values stored under key.
func (m *CacheMultiMap) Get(key string) []string {
	existing, ok := m.cache.Get(key)
	if !ok {
		return nil
	}
	return existing.([]string)
}

// Remove deletes key and its whole value set.
func (m *CacheMultiMap) Remove(key string) {
	m.cache.Remove(key)
}

// Len returns the number of distinct keys currently held.
func (m *CacheMultiMap) Len() int {
	return m.cache.Len()
}
