package ghost

import (
	"context"
	"sync"
)

// Loader fetches a reference run from the run-history collaborator.
type Loader interface {
	LoadReference(ctx context.Context, runID string) (*Reference, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, runID string) (*Reference, error)

func (f LoaderFunc) LoadReference(ctx context.Context, runID string) (*Reference, error) {
	return f(ctx, runID)
}

// Cache holds ghost references per comparison session with lazy load on miss
// and explicit eviction on session end, so reference lifetime and memory
// growth stay auditable.
type Cache struct {
	mu        sync.RWMutex
	bySession map[string]*Reference
	loader    Loader
}

func NewCache(loader Loader) *Cache {
	return &Cache{bySession: make(map[string]*Reference), loader: loader}
}

// Get returns the cached reference for the session, loading it by runID on a
// miss.
func (c *Cache) Get(ctx context.Context, sessionID, runID string) (*Reference, error) {
	c.mu.RLock()
	ref := c.bySession[sessionID]
	c.mu.RUnlock()
	if ref != nil && ref.RunID == runID {
		return ref, nil
	}

	loaded, err := c.loader.LoadReference(ctx, runID)
	if err != nil {
		return nil, err
	}
	if loaded == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.bySession[sessionID] = loaded
	c.mu.Unlock()
	return loaded, nil
}

// Evict drops the session's reference. Called when the comparison ends.
func (c *Cache) Evict(sessionID string) {
	c.mu.Lock()
	delete(c.bySession, sessionID)
	c.mu.Unlock()
}

// Len reports how many references are currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySession)
}
