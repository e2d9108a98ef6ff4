package schema

import (
	"context"
	"sync"
)

// Source resolves a table name to its schema descriptor. The ORM layer is
// the usual implementation.
type Source interface {
	SchemaFor(ctx context.Context, tableName string) (*TableSchema, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, tableName string) (*TableSchema, error)

func (f SourceFunc) SchemaFor(ctx context.Context, tableName string) (*TableSchema, error) {
	return f(ctx, tableName)
}

// Cache is a read-mostly, concurrency-safe schema cache keyed by table name.
// It is owned by the adapter instance rather than being process-global, so
// tests and multi-tenant setups get isolated caches. Entries are invalidated
// only through Evict or Clear.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*TableSchema
	source  Source
}

// NewCache creates a cache backed by the given source.
func NewCache(source Source) *Cache {
	return &Cache{
		entries: make(map[string]*TableSchema),
		source:  source,
	}
}

// Get returns the cached schema, loading and validating it on first use.
func (c *Cache) Get(ctx context.Context, tableName string) (*TableSchema, error) {
	c.mu.RLock()
	cached, ok := c.entries[tableName]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	loaded, err := c.source.SchemaFor(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A concurrent loader may have won; keep the first entry so callers
	// holding references all see the same descriptor.
	if existing, ok := c.entries[tableName]; ok {
		return existing, nil
	}
	c.entries[tableName] = loaded
	return loaded, nil
}

// Put stores a descriptor directly, bypassing the source.
func (c *Cache) Put(schema *TableSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[schema.TableName] = schema
	return nil
}

// Evict drops one table's entry. Called after DeleteTable and on forced reload.
func (c *Cache) Evict(tableName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tableName)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*TableSchema)
}

// Len returns the number of cached descriptors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
