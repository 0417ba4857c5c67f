/*
File: cache.go
Version: 2.0.0
Description: Thread-safe sharded LRU cache for assessments, keyed on the normalized URL.
             Entries expire after a TTL. The whole cache is flushed when reference sets change,
             since every cached verdict was computed against the previous sets.
*/

package main

import (
	"container/list"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"
)

type verdictCacheEntry struct {
	key      string
	result   *Assessment
	expireAt time.Time
}

type verdictCacheShard struct {
	sync.Mutex
	items    map[string]*list.Element
	lruList  *list.List
	capacity int
}

// VerdictCache is the in-process tier of the verdict cache.
type VerdictCache struct {
	shards [verdictCacheShards]*verdictCacheShard
	seed   maphash.Seed
	ttl    time.Duration
	now    func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is reported by /statistics.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func NewVerdictCache(capacity int, ttl time.Duration) *VerdictCache {
	if capacity <= 0 {
		capacity = defaultVerdictCacheSize
	}
	if ttl <= 0 {
		ttl = defaultVerdictCacheTTL
	}
	c := &VerdictCache{
		seed: maphash.MakeSeed(),
		ttl:  ttl,
		now:  time.Now,
	}
	shardCap := capacity / verdictCacheShards
	if shardCap < 1 {
		shardCap = 1
	}

	for i := 0; i < verdictCacheShards; i++ {
		c.shards[i] = &verdictCacheShard{
			items:    make(map[string]*list.Element),
			lruList:  list.New(),
			capacity: shardCap,
		}
	}
	return c
}

func (c *VerdictCache) getShard(key string) *verdictCacheShard {
	return c.shards[maphash.String(c.seed, key)&(verdictCacheShards-1)]
}

// Get returns a copy of the cached assessment.
func (c *VerdictCache) Get(key string) (*Assessment, bool) {
	shard := c.getShard(key)
	shard.Lock()
	defer shard.Unlock()

	el, ok := shard.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	entry := el.Value.(*verdictCacheEntry)
	if c.now().After(entry.expireAt) {
		shard.lruList.Remove(el)
		delete(shard.items, key)
		c.misses.Add(1)
		return nil, false
	}
	shard.lruList.MoveToFront(el)
	c.hits.Add(1)
	return cloneAssessment(entry.result), true
}

// Add stores a copy of result. ERROR assessments are ignored.
func (c *VerdictCache) Add(key string, result *Assessment) {
	if result == nil || result.Verdict == VerdictError {
		return
	}
	shard := c.getShard(key)
	shard.Lock()
	defer shard.Unlock()

	expireAt := c.now().Add(c.ttl)
	if elem, found := shard.items[key]; found {
		shard.lruList.MoveToFront(elem)
		entry := elem.Value.(*verdictCacheEntry)
		entry.result = cloneAssessment(result)
		entry.expireAt = expireAt
		return
	}

	if shard.lruList.Len() >= shard.capacity {
		if oldest := shard.lruList.Back(); oldest != nil {
			shard.lruList.Remove(oldest)
			delete(shard.items, oldest.Value.(*verdictCacheEntry).key)
		}
	}

	entry := &verdictCacheEntry{key: key, result: cloneAssessment(result), expireAt: expireAt}
	shard.items[key] = shard.lruList.PushFront(entry)
}

func (c *VerdictCache) Flush() {
	for _, shard := range c.shards {
		shard.Lock()
		shard.items = make(map[string]*list.Element)
		shard.lruList.Init()
		shard.Unlock()
	}
}

func (c *VerdictCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.Lock()
		n += shard.lruList.Len()
		shard.Unlock()
	}
	return n
}

func (c *VerdictCache) Stats() CacheStats {
	return CacheStats{Entries: c.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// cloneAssessment copies the slice field so cached entries are never shared with callers.
func cloneAssessment(a *Assessment) *Assessment {
	if a == nil {
		return nil
	}
	out := *a
	if a.Findings != nil {
		out.Findings = cloneStrings(a.Findings)
	}
	return &out
}
