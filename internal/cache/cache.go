// Package cache provides the content-addressed artifact cache shared by build
// sessions.
//
// Keys are build or unit fingerprints. Because a key covers every input that
// can influence the artifact, entries are never invalidated; the only reason
// an entry disappears is LRU eviction under the configured byte budget, and a
// miss only costs a rebuild. Cache operations never panic outward: any
// internal failure is reported as a miss.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Cache is the capability injected into build sessions.
type Cache interface {
	// Get returns the entry stored under key. The returned entry must be
	// treated as read-only.
	Get(key string) (Entry, bool)
	// Put stores entry under key. Writing a key that already exists is a
	// no-op: entries are immutable once written.
	Put(key string, entry Entry)
}

// Entry is a cached build outcome: the encoded artifact plus the diagnostics
// produced when it was computed.
type Entry struct {
	Artifact    []byte
	Diagnostics []string
}

func (e Entry) size() int64 {
	size := int64(len(e.Artifact))
	for _, d := range e.Diagnostics {
		size += int64(len(d))
	}

	return size
}

func (e Entry) checksum() uint64 {
	digest := xxhash.New()
	_, _ = digest.Write(e.Artifact)
	for _, d := range e.Diagnostics {
		_, _ = digest.Write([]byte{0})
		_, _ = digest.WriteString(d)
	}

	return digest.Sum64()
}

func (e Entry) clone() Entry {
	clone := Entry{}
	if e.Artifact != nil {
		clone.Artifact = append([]byte(nil), e.Artifact...)
	}
	if e.Diagnostics != nil {
		clone.Diagnostics = append([]string(nil), e.Diagnostics...)
	}

	return clone
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries   int     `json:"entries"`
	Bytes     int64   `json:"bytes"`
	MaxBytes  int64   `json:"max_bytes"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Corrupted int64   `json:"corrupted"`
	HitRate   float64 `json:"hit_rate"`
}

// ArtifactCache is a byte-bounded LRU cache safe for concurrent use.
type ArtifactCache struct {
	entries     map[string]*node
	mutex       sync.Mutex
	maxBytes    int64
	currentSize int64
	// LRU doubly-linked list with sentinel head and tail
	head *node
	tail *node
	// Statistics tracking (atomic for lock-free reads)
	hits      int64
	misses    int64
	sets      int64
	evictions int64
	corrupted int64
}

type node struct {
	key   string
	entry Entry
	sum   uint64
	size  int64
	prev  *node
	next  *node
}

var _ Cache = (*ArtifactCache)(nil)

// New creates a cache holding at most maxBytes of artifacts and diagnostics.
// A non-positive maxBytes means unbounded.
func New(maxBytes int64) *ArtifactCache {
	cache := &ArtifactCache{
		entries:  make(map[string]*node),
		maxBytes: maxBytes,
	}

	cache.head = &node{}
	cache.tail = &node{}
	cache.head.next = cache.tail
	cache.tail.prev = cache.head

	return cache
}

// Get retrieves an entry and marks it most recently used. An entry whose
// checksum no longer matches its content is dropped and reported as a miss.
func (c *ArtifactCache) Get(key string) (entry Entry, found bool) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&c.corrupted, 1)
			entry, found = Entry{}, false
		}
	}()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	n, exists := c.entries[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return Entry{}, false
	}

	if n.entry.checksum() != n.sum {
		c.remove(n)
		atomic.AddInt64(&c.corrupted, 1)
		atomic.AddInt64(&c.misses, 1)
		return Entry{}, false
	}

	c.moveToFront(n)
	atomic.AddInt64(&c.hits, 1)

	return n.entry, true
}

// Put stores a copy of entry. Entries larger than the whole budget are not
// stored.
func (c *ArtifactCache) Put(key string, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&c.corrupted, 1)
		}
	}()

	stored := entry.clone()
	size := int64(len(key)) + stored.size()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, exists := c.entries[key]; exists {
		c.moveToFront(existing)
		return
	}

	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}

	c.evictIfNeeded(size)

	n := &node{
		key:   key,
		entry: stored,
		sum:   stored.checksum(),
		size:  size,
	}
	c.entries[key] = n
	c.currentSize += size
	c.addToFront(n)
	atomic.AddInt64(&c.sets, 1)
}

// Clear removes every entry and resets the statistics.
func (c *ArtifactCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*node)
	c.currentSize = 0
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.sets, 0)
	atomic.StoreInt64(&c.evictions, 0)
	atomic.StoreInt64(&c.corrupted, 0)
}

// Stats returns a snapshot of the cache counters.
func (c *ArtifactCache) Stats() Stats {
	c.mutex.Lock()
	count := len(c.entries)
	size := c.currentSize
	c.mutex.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:   count,
		Bytes:     size,
		MaxBytes:  c.maxBytes,
		Hits:      hits,
		Misses:    misses,
		Sets:      atomic.LoadInt64(&c.sets),
		Evictions: atomic.LoadInt64(&c.evictions),
		Corrupted: atomic.LoadInt64(&c.corrupted),
		HitRate:   hitRate,
	}
}

// evictIfNeeded evicts least recently used entries until newSize fits.
func (c *ArtifactCache) evictIfNeeded(newSize int64) {
	if c.maxBytes <= 0 {
		return
	}

	for c.currentSize+newSize > c.maxBytes && c.tail.prev != c.head {
		c.remove(c.tail.prev)
		atomic.AddInt64(&c.evictions, 1)
	}
}

func (c *ArtifactCache) remove(n *node) {
	c.removeFromList(n)
	delete(c.entries, n.key)
	c.currentSize -= n.size
}

// LRU doubly-linked list operations
func (c *ArtifactCache) addToFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *ArtifactCache) removeFromList(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *ArtifactCache) moveToFront(n *node) {
	c.removeFromList(n)
	c.addToFront(n)
}

// Nop is a cache that stores nothing.
type Nop struct{}

var _ Cache = Nop{}

// Get always misses.
func (Nop) Get(string) (Entry, bool) { return Entry{}, false }

// Put discards the entry.
func (Nop) Put(string, Entry) {}
