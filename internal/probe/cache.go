package probe

import "sync"

// Cache maps normalized site URLs to their resolved web service names.
// ARCHITECTURAL DISCOVERY: Explicit cache object owned by the session manager
// and passed to the prober by reference - replaces any global service table.
// Process lifetime only; never persisted.
type Cache struct {
	mu       sync.RWMutex
	services map[string]string
}

// NewCache creates an empty service-name cache
func NewCache() *Cache {
	return &Cache{services: make(map[string]string)}
}

// Get returns the cached service name for a site URL
func (c *Cache) Get(siteURL string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	service, ok := c.services[siteURL]
	return service, ok
}

// Set caches the resolved service name for a site URL
func (c *Cache) Set(siteURL, service string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[siteURL] = service
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.services)
}
