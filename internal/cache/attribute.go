package cache

import (
	"context"
	"sync"

	"github.com/tovian/tovian/pkg/core"
)

// AttributeLister loads attribute reference data.
type AttributeLister interface {
	Attributes(ctx context.Context) ([]core.Attribute, error)
}

// AttributeCache maps attribute names and IDs to shared attribute records
type AttributeCache struct {
	mu     sync.RWMutex
	byName map[string]*core.Attribute
	byID   map[uint]*core.Attribute
}

// NewAttributeCache creates a new AttributeCache
func NewAttributeCache() *AttributeCache {
	return &AttributeCache{
		byName: make(map[string]*core.Attribute),
		byID:   make(map[uint]*core.Attribute),
	}
}

// Load replaces the cache contents with everything the lister returns.
func (c *AttributeCache) Load(ctx context.Context, l AttributeLister) error {
	attrs, err := l.Attributes(ctx)
	if err != nil {
		return err
	}
	c.Reset()
	for _, a := range attrs {
		c.Set(a)
	}
	return nil
}

// Get retrieves an attribute by name
func (c *AttributeCache) Get(name string) (*core.Attribute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byName[name]
	return a, ok
}

// GetByID retrieves an attribute by ID
func (c *AttributeCache) GetByID(id uint) (*core.Attribute, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.byID[id]
	return a, ok
}

// Set stores an attribute under its name and ID
func (c *AttributeCache) Set(a core.Attribute) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byID[a.ID]; ok && old.Name != a.Name {
		delete(c.byName, old.Name)
	}
	stored := &a
	c.byName[a.Name] = stored
	c.byID[a.ID] = stored
}

// Len returns the number of cached attributes
func (c *AttributeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Reset clears all attributes from the cache
func (c *AttributeCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName = make(map[string]*core.Attribute)
	c.byID = make(map[uint]*core.Attribute)
}
