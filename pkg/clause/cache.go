package clause

import (
	"container/list"
	"sync"
	"time"
)

// CacheConfig contains configuration options for the template cache
type CacheConfig struct {
	// MaxSize is the maximum number of templates to cache. 0 disables caching.
	MaxSize int
	// TTL is the time-to-live for cached templates. 0 means no expiration.
	TTL time.Duration
}

// TemplateCache holds validated templates keyed by the SHA-256 of their
// raw text. Cached templates are immutable and shared read-only between
// concurrent renders.
type TemplateCache struct {
	mu     sync.Mutex
	cache  map[string]*cacheEntry
	lru    *list.List
	config CacheConfig

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key      string
	template *Template
	expiry   time.Time
	element  *list.Element
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// NewTemplateCache creates a new template cache with default configuration
func NewTemplateCache() *TemplateCache {
	config := GetGlobalConfig()
	return NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: config.CacheMaxSize,
		TTL:     config.CacheTTL,
	})
}

// NewTemplateCacheWithConfig creates a new template cache with the given configuration
func NewTemplateCacheWithConfig(config CacheConfig) *TemplateCache {
	return &TemplateCache{
		cache:  make(map[string]*cacheEntry),
		lru:    list.New(),
		config: config,
	}
}

// Parse returns the cached template for source or parses and caches it.
// Rejected templates are never cached. The size limit is the caller's and is
// checked before the lookup, since engines with different limits may share
// one cache.
func (tc *TemplateCache) Parse(source string, maxSize int) (*Template, error) {
	if err := checkSize(source, maxSize); err != nil {
		return nil, err
	}
	if !tc.enabled() {
		return parseTemplate(source, maxSize)
	}

	key := ContentHash(source)
	if tmpl, ok := tc.Get(key); ok {
		return tmpl, nil
	}

	tmpl, err := parseTemplate(source, maxSize)
	if err != nil {
		return nil, err
	}

	tc.Set(key, tmpl)
	return tmpl, nil
}

// Get retrieves a template by content hash without parsing.
func (tc *TemplateCache) Get(key string) (*Template, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	entry, exists := tc.cache[key]
	if !exists {
		tc.misses++
		return nil, false
	}

	if tc.config.TTL > 0 && time.Now().After(entry.expiry) {
		tc.removeLocked(entry)
		tc.misses++
		return nil, false
	}

	tc.lru.MoveToFront(entry.element)
	tc.hits++
	return entry.template, true
}

func (tc *TemplateCache) enabled() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.config.MaxSize > 0
}

// Set adds a template to the cache. An existing entry for the same key is
// kept: equal hashes mean equal source, so the templates are equivalent.
func (tc *TemplateCache) Set(key string, template *Template) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.config.MaxSize == 0 {
		return
	}

	if existing, exists := tc.cache[key]; exists {
		if tc.config.TTL > 0 {
			existing.expiry = time.Now().Add(tc.config.TTL)
		}
		tc.lru.MoveToFront(existing.element)
		return
	}

	if tc.lru.Len() >= tc.config.MaxSize {
		if oldest := tc.lru.Back(); oldest != nil {
			tc.removeLocked(oldest.Value.(*cacheEntry))
		}
	}

	entry := &cacheEntry{
		key:      key,
		template: template,
	}
	if tc.config.TTL > 0 {
		entry.expiry = time.Now().Add(tc.config.TTL)
	}

	entry.element = tc.lru.PushFront(entry)
	tc.cache[key] = entry
}

// configure changes the size and TTL, evicting least recently used entries
// beyond the new size. Existing expiry times are kept.
func (tc *TemplateCache) configure(config CacheConfig) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.config = config
	for tc.lru.Len() > config.MaxSize {
		tc.removeLocked(tc.lru.Back().Value.(*cacheEntry))
	}
}

// Remove drops a template from the cache.
func (tc *TemplateCache) Remove(key string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if entry, exists := tc.cache[key]; exists {
		tc.removeLocked(entry)
	}
}

func (tc *TemplateCache) removeLocked(entry *cacheEntry) {
	delete(tc.cache, entry.key)
	tc.lru.Remove(entry.element)
}

// Clear removes all templates from the cache
func (tc *TemplateCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.cache = make(map[string]*cacheEntry)
	tc.lru = list.New()
}

// Size returns the current number of cached templates
func (tc *TemplateCache) Size() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.cache)
}

// Stats returns a snapshot of the cache counters.
func (tc *TemplateCache) Stats() CacheStats {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return CacheStats{Size: len(tc.cache), Hits: tc.hits, Misses: tc.misses}
}

// defaultCache is a global cache instance for convenience
var defaultCache = NewTemplateCache()
