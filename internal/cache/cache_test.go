package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryOf(value string) Entry {
	return Entry{Artifact: []byte(value)}
}

func TestArtifactCache_GetPut(t *testing.T) {
	cache := New(0)

	_, found := cache.Get("missing")
	assert.False(t, found)

	cache.Put("fp1", Entry{Artifact: []byte("doc"), Diagnostics: []string{"warn"}})
	entry, found := cache.Get("fp1")
	require.True(t, found)
	assert.Equal(t, []byte("doc"), entry.Artifact)
	assert.Equal(t, []string{"warn"}, entry.Diagnostics)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestArtifactCache_WriteOnce(t *testing.T) {
	cache := New(0)

	cache.Put("fp", entryOf("first"))
	cache.Put("fp", entryOf("second"))

	entry, found := cache.Get("fp")
	require.True(t, found)
	assert.Equal(t, "first", string(entry.Artifact))
	assert.Equal(t, int64(1), cache.Stats().Sets)
}

func TestArtifactCache_PutCopiesInput(t *testing.T) {
	cache := New(0)
	artifact := []byte("original")

	cache.Put("fp", Entry{Artifact: artifact})
	artifact[0] = 'X'

	entry, found := cache.Get("fp")
	require.True(t, found)
	assert.Equal(t, "original", string(entry.Artifact))
}

func TestArtifactCache_CorruptedEntryDegradesToMiss(t *testing.T) {
	cache := New(0)
	cache.Put("fp", entryOf("artifact"))

	entry, found := cache.Get("fp")
	require.True(t, found)

	// Mutating a returned entry breaks its checksum; the cache must never
	// hand the altered bytes out again.
	entry.Artifact[0] = 'X'

	_, found = cache.Get("fp")
	assert.False(t, found)
	assert.Equal(t, int64(1), cache.Stats().Corrupted)
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestArtifactCache_LRUEviction(t *testing.T) {
	t.Run("evicts least recently used", func(t *testing.T) {
		// Each entry costs len(key)+len(value) = 3+6 = 9 bytes.
		cache := New(27)

		cache.Put("ke1", entryOf("value1"))
		cache.Put("ke2", entryOf("value2"))
		cache.Put("ke3", entryOf("value3"))

		// Touch ke1 so ke2 becomes the eviction candidate.
		_, found := cache.Get("ke1")
		require.True(t, found)

		cache.Put("ke4", entryOf("value4"))

		_, found = cache.Get("ke2")
		assert.False(t, found, "ke2 should be evicted as LRU")
		for _, key := range []string{"ke1", "ke3", "ke4"} {
			_, found := cache.Get(key)
			assert.True(t, found, "%s should still be present", key)
		}
		assert.Equal(t, int64(1), cache.Stats().Evictions)
	})

	t.Run("oversized entries are skipped", func(t *testing.T) {
		cache := New(8)
		cache.Put("key", entryOf("much too large"))

		_, found := cache.Get("key")
		assert.False(t, found)
		assert.Equal(t, int64(0), cache.Stats().Bytes)
	})
}

func TestArtifactCache_Clear(t *testing.T) {
	cache := New(0)
	cache.Put("a", entryOf("1"))
	cache.Get("a")

	cache.Clear()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.Bytes)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestArtifactCache_ConcurrentAccess(t *testing.T) {
	cache := New(4096)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("fp-%d", i%32)
				cache.Put(key, entryOf(key))
				if entry, found := cache.Get(key); found {
					assert.Equal(t, key, string(entry.Artifact))
				}
			}
		}(worker)
	}
	wg.Wait()

	stats := cache.Stats()
	assert.LessOrEqual(t, stats.Bytes, int64(4096))
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	c.Put("fp", entryOf("x"))

	_, found := c.Get("fp")
	assert.False(t, found)
}
