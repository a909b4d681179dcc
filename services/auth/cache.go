package auth

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NathanYKo/RAG-Document-System/models"
)

// cacheEntry is a cached API key lookup with its insertion time
type cacheEntry struct {
	hash       string
	key        *models.APIKey
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// KeyCache is an in-memory LRU cache with TTL for API key lookups,
// keyed by the key's SHA-256 hash. It saves a database round trip per
// authenticated request. Thread-safe.
type KeyCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	lruList *list.List // Doubly linked list for LRU tracking
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewKeyCache creates a KeyCache with the given max size and TTL
func NewKeyCache(maxSize int, ttl time.Duration) *KeyCache {
	return &KeyCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a cached API key by hash.
// Returns nil if not found or expired.
func (c *KeyCache) Get(hash string) *models.APIKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[hash]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(hash)
		}
		return nil
	}

	// Move to front (most recently used)
	c.lruList.MoveToFront(entry.element)
	c.hits++

	return entry.key
}

// Set stores an API key lookup result
func (c *KeyCache) Set(hash string, key *models.APIKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[hash]; exists {
		entry.key = key
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		hash:       hash,
		key:        key,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(hash)
	c.entries[hash] = entry
}

// Invalidate removes a single cached key
func (c *KeyCache) Invalidate(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(hash)
}

// InvalidateUser removes every cached key owned by a user, for
// example after the account is deactivated.
func (c *KeyCache) InvalidateUser(userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hash, entry := range c.entries {
		if entry.key != nil && entry.key.UserID == userID {
			c.removeEntry(hash)
		}
	}
}

// Clear removes all entries
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *KeyCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

func (c *KeyCache) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry removes an entry (must be called with lock held)
func (c *KeyCache) removeEntry(hash string) {
	if entry, exists := c.entries[hash]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, hash)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *KeyCache) evictLRU() {
	backElement := c.lruList.Back()
	if backElement != nil {
		hash := backElement.Value.(string)
		c.lruList.Remove(backElement)
		delete(c.entries, hash)
	}
}

// CleanupExpired removes all expired entries and returns how many were
// dropped. Called periodically from a background goroutine.
func (c *KeyCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := make([]string, 0)
	for hash, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expired = append(expired, hash)
		}
	}
	for _, hash := range expired {
		c.removeEntry(hash)
	}

	return len(expired)
}

// StartCleanupWorker periodically evicts expired entries until stopCh closes
func (c *KeyCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
