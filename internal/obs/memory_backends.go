package obs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/flowrun/flowrun/internal/spi"
)

// MemoryCache is an in-process spi.CacheBackend keyed by string, storing
// entries with an expiry timestamp. Reads take the read lock and retry
// under the write lock when an expired entry needs evicting.
type MemoryCache struct {
	mu      sync.RWMutex
	clock   clockz.Clock
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{clock: clockz.RealClock, entries: make(map[string]memoryCacheEntry)}
}

// WithClock overrides the clock, so TTL-expiry tests can advance time
// instead of sleeping through it.
func (c *MemoryCache) WithClock(clock clockz.Clock) *MemoryCache {
	c.clock = clock
	return c
}

// Get implements spi.CacheBackend.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.clock.Now().After(e.expires) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[key]; ok && !c.clock.Now().After(cur.expires) {
			return cur.value, true, nil
		}
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Put implements spi.CacheBackend.
func (c *MemoryCache) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{value: value, expires: c.clock.Now().Add(ttl)}
	return nil
}

var _ spi.CacheBackend = (*MemoryCache)(nil)

// MemorySuspensionStore is an in-process spi.SuspensionStore, suitable
// for a single-process run; a durable deployment would back this with a
// database instead, substituting the same interface.
type MemorySuspensionStore struct {
	mu      sync.RWMutex
	entries map[string]spi.SuspendedExecution
	next    int
}

// NewMemorySuspensionStore constructs an empty MemorySuspensionStore.
func NewMemorySuspensionStore() *MemorySuspensionStore {
	return &MemorySuspensionStore{entries: make(map[string]spi.SuspendedExecution)}
}

// Save implements spi.SuspensionStore.
func (s *MemorySuspensionStore) Save(_ context.Context, se spi.SuspendedExecution) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	handle := fmt.Sprintf("susp-%s-%d", se.PipelineHash[:minInt(8, len(se.PipelineHash))], s.next)
	s.entries[handle] = se
	return handle, nil
}

// Load implements spi.SuspensionStore.
func (s *MemorySuspensionStore) Load(_ context.Context, handle string) (spi.SuspendedExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.entries[handle]
	if !ok {
		return spi.SuspendedExecution{}, fmt.Errorf("obs: no suspended execution for handle %q", handle)
	}
	return se, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var _ spi.SuspensionStore = (*MemorySuspensionStore)(nil)
