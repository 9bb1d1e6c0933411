package demux

import (
	"sync"
)

const cacheSize = 10

// Cache keeps the n most recently parsed presentations keyed by file
// path, so repeated probing of the same file skips the parse. Parse
// itself never touches it; parsing stays a pure function of its input.
type Cache struct {
	items map[string]*cacheItem
	age   int

	maxSize int

	mu sync.Mutex
}

type cacheItem struct {
	pres *Presentation

	key string
	age int
}

// NewCache creates a presentation cache.
func NewCache() *Cache {
	return &Cache{
		items:   map[string]*cacheItem{},
		maxSize: cacheSize,
	}
}

// Add item to the cache.
func (c *Cache) Add(key string, pres *Presentation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Ignore duplicate keys.
	if _, exist := c.items[key]; exist {
		return
	}

	c.age++
	if len(c.items) >= c.maxSize {
		// Delete the oldest item.
		oldestItem := &cacheItem{age: -1}
		for _, item := range c.items {
			if oldestItem.age == -1 || item.age < oldestItem.age {
				oldestItem = item
			}
		}
		delete(c.items, oldestItem.key)
	}

	c.items[key] = &cacheItem{pres: pres, key: key, age: c.age}
}

// Get item by key and update its age if it exists.
func (c *Cache) Get(key string) (*Presentation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exist := c.items[key]; exist {
		c.age++
		item.age = c.age
		return item.pres, true
	}
	return nil, false
}

// ParseFileCached parses through the cache when one is given.
func ParseFileCached(path string, cache *Cache) (*Presentation, error) {
	if cache == nil {
		return ParseFile(path)
	}
	if pres, exist := cache.Get(path); exist {
		return pres, nil
	}
	pres, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	cache.Add(path, pres)
	return pres, nil
}
