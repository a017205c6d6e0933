package httpcache

import (
	"net/http"
	"sync"
	"time"

	"github.com/lazyhub/lazyhub/pkg/logging"
)

// Store is the persistent backing for cache entries. A corrupted or
// unreadable row must surface as an error from Load; the cache treats it as
// a miss and purges the row. A nil Store leaves the cache memory-only.
type Store interface {
	Load(key string) (*Entry, error)
	Save(key string, path string, entry *Entry) error
	Delete(key string) error
	DeletePrefix(pathPrefix string) error
	Close() error
}

// Cache holds HTTP responses keyed by request identity. The in-memory map
// is authoritative; the Store is a write-through copy that survives process
// restarts. A cold cache behaves as all-Miss, so correctness never depends
// on the persisted state.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	store   Store
	logger  *logging.Logger
	now     func() time.Time
}

// New creates a cache over the given store. The store may be nil.
func New(store Store, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{
		entries: make(map[Key]*Entry),
		store:   store,
		logger:  logger.WithComponent("httpcache"),
		now:     time.Now,
	}
}

// Lookup returns the entry for a key and its freshness classification.
// The returned entry is a copy; callers may retain it across revalidation.
func (c *Cache) Lookup(key Key) (*Entry, Freshness) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		entry = c.loadPersisted(key)
		if entry == nil {
			return nil, Miss
		}
	}

	if entry.FreshAt(c.now()) {
		return entry.clone(), Fresh
	}
	return entry.clone(), Stale
}

// loadPersisted pulls a key from the store into memory. Corrupt rows are
// purged and reported as absent.
func (c *Cache) loadPersisted(key Key) *Entry {
	if c.store == nil {
		return nil
	}

	entry, err := c.store.Load(key.String())
	if err != nil {
		c.logger.Warn("purging unreadable cache entry", "key", key.String(), "error", err)
		_ = c.store.Delete(key.String())
		return nil
	}
	if entry == nil {
		return nil
	}

	c.mu.Lock()
	// Another goroutine may have stored a newer entry meanwhile
	if existing, ok := c.entries[key]; ok {
		entry = existing
	} else {
		c.entries[key] = entry
	}
	c.mu.Unlock()
	return entry
}

// Put stores a validated response under the key, replacing any previous
// entry wholesale.
func (c *Cache) Put(key Key, entry *Entry) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	c.persist(key, entry)
	c.logger.Debug("stored response", "key", key.String(), "status", entry.StatusCode, "ttl", entry.TTL)
}

// Refresh handles the 304 Not Modified path: the stored-at timestamp
// advances and validator headers are updated, while the cached body and
// status stay untouched. It returns the refreshed entry, or nil if the key
// is unknown (the caller then treats the 304 as a protocol error).
//
// The stored entry is replaced, never mutated: entries in the map are
// immutable once stored, so Lookup may read one after dropping the lock.
func (c *Cache) Refresh(key Key, header http.Header) *Entry {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}

	refreshed := entry.clone()
	for _, name := range []string{"ETag", "Last-Modified", "Link", "Cache-Control"} {
		if v := header.Get(name); v != "" {
			refreshed.Header.Set(name, v)
		}
	}
	refreshed.StoredAt = c.now()
	c.entries[key] = refreshed
	c.mu.Unlock()

	c.persist(key, refreshed)
	c.logger.Debug("revalidated entry", "key", key.String())
	return refreshed.clone()
}

// Invalidate removes a single entry
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(key.String()); err != nil {
			c.logger.Warn("failed to delete persisted entry", "key", key.String(), "error", err)
		}
	}
}

// InvalidatePrefix removes every entry whose path starts with the given
// resource path. Called after mutating actions so the next read bypasses
// the cache.
func (c *Cache) InvalidatePrefix(pathPrefix string) {
	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if key.MatchesPrefix(pathPrefix) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeletePrefix(pathPrefix); err != nil {
			c.logger.Warn("failed to delete persisted prefix", "prefix", pathPrefix, "error", err)
		}
	}
	c.logger.Info("invalidated prefix", "prefix", pathPrefix, "entries", removed)
}

// Len returns the number of entries currently held in memory
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) persist(key Key, entry *Entry) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(key.String(), key.Path, entry); err != nil {
		// Persistence is best-effort; the in-memory entry stays valid
		c.logger.Warn("failed to persist entry", "key", key.String(), "error", err)
	}
}
