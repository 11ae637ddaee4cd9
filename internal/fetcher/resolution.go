package fetcher

import (
	"context"
	"fmt"
	"sync"
)

// WalkFunc enumerates the platform hierarchy once and returns every
// key → internal id pair it saw.
type WalkFunc func(ctx context.Context) (map[string]string, error)

// ResolutionCache maps public identifiers (e.g. problem numbers) to the
// platform's internal ids. Lookup order is memory, then a single bulk walk,
// then ErrUnresolved. It lives as long as its fetcher and is never persisted.
type ResolutionCache struct {
	platform string
	walk     WalkFunc

	mu     sync.Mutex
	ids    map[string]string
	walked bool
}

func NewResolutionCache(platform string, walk WalkFunc) *ResolutionCache {
	return &ResolutionCache{platform: platform, walk: walk, ids: map[string]string{}}
}

// Put seeds the cache, e.g. with ids learned as a side effect of another call.
func (c *ResolutionCache) Put(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[key] = id
}

func (c *ResolutionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Resolve returns the internal id for key. The walk runs at most once per
// cache; a failed walk is reported to the caller that triggered it and later
// misses report ErrUnresolved.
func (c *ResolutionCache) Resolve(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.ids[key]; ok {
		return id, nil
	}
	if !c.walked && c.walk != nil {
		c.walked = true
		found, err := c.walk(ctx)
		for k, v := range found {
			if _, ok := c.ids[k]; !ok {
				c.ids[k] = v
			}
		}
		if err != nil {
			return "", err
		}
		if id, ok := c.ids[key]; ok {
			return id, nil
		}
	}
	return "", E(ErrUnresolved, c.platform, "resolve", fmt.Errorf("no internal id for %q", key))
}
