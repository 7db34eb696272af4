// Package cache holds compiled chains keyed by the content hash of their
// normalized source.
//
// Concurrent requests for the same key share one compilation. Compile
// errors are returned to every waiter and never stored, so a later request
// retries. An optional second-level Store (for example SQLite) is consulted
// on a miss and filled after a successful compile.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/tale/compiler/hash"
	"github.com/chazu/tale/pkg/bytecode"
)

var log = commonlog.GetLogger("tale.cache")

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// CompileFunc turns script source into a chain.
type CompileFunc func(src string) (*bytecode.Chain, error)

// Store is a second-level chain store.
type Store interface {
	// LoadChain returns the chain for key; ok is false on a miss.
	LoadChain(ctx context.Context, key hash.Key) (chain *bytecode.Chain, ok bool, err error)
	// StoreChain records chain under key.
	StoreChain(ctx context.Context, key hash.Key, chain *bytecode.Chain) error
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits      uint64 // served from memory
	Misses    uint64 // not in memory
	StoreHits uint64 // misses served by the second level
	Compiles  uint64 // compilations run, successful or not
	Failures  uint64 // compilations that returned an error
	Coalesced uint64 // callers that waited on another caller's compilation
	Evictions uint64 // entries dropped for capacity
	Entries   int
	Capacity  int
}

// Cache is safe for concurrent use.
type Cache struct {
	entries  *lru.Cache
	group    singleflight.Group
	compile  CompileFunc
	store    Store
	capacity int

	hits, misses, storeHits atomic.Uint64
	compiles, failures      atomic.Uint64
	coalesced, evictions    atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore adds a second-level store.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// New creates a cache holding up to capacity chains.
func New(capacity int, compile CompileFunc, opts ...Option) (*Cache, error) {
	if compile == nil {
		return nil, fmt.Errorf("cache: nil compile function")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c := &Cache{
		entries:  entries,
		compile:  compile,
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the chain for src, compiling src itself if needed. Sources
// that normalize alike share one entry; normalization never changes what a
// script does, so any of them compiles to the same program.
// If ctx ends while waiting, Get returns ctx.Err(); the compilation itself
// still finishes and fills the cache for later callers.
func (c *Cache) Get(ctx context.Context, src string) (*bytecode.Chain, error) {
	key := hash.SourceKey(src)

	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return v.(*bytecode.Chain), nil
	}
	c.misses.Add(1)

	leader := false
	ch := c.group.DoChan(key.String(), func() (any, error) {
		leader = true
		return c.load(context.WithoutCancel(ctx), key, src)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if !leader {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*bytecode.Chain), nil
	}
}

// load runs once per key at a time, inside the singleflight group.
func (c *Cache) load(ctx context.Context, key hash.Key, src string) (*bytecode.Chain, error) {
	// another flight may have filled the entry between our miss and now
	if v, ok := c.entries.Get(key); ok {
		return v.(*bytecode.Chain), nil
	}

	if c.store != nil {
		chain, ok, err := c.store.LoadChain(ctx, key)
		switch {
		case err != nil:
			log.Warningf("store lookup %s: %s", key.Short(), err)
		case ok:
			c.storeHits.Add(1)
			c.add(key, chain)
			return chain, nil
		}
	}

	c.compiles.Add(1)
	chain, err := c.compile(src)
	if err != nil {
		c.failures.Add(1)
		log.Debugf("compile %s failed: %s", key.Short(), err)
		return nil, err
	}
	log.Debugf("compiled %s: %d instructions", key.Short(), chain.Len())
	c.add(key, chain)

	if c.store != nil {
		if err := c.store.StoreChain(ctx, key, chain); err != nil {
			log.Warningf("store write %s: %s", key.Short(), err)
		}
	}
	return chain, nil
}

func (c *Cache) add(key hash.Key, chain *bytecode.Chain) {
	if c.entries.Add(key, chain) {
		c.evictions.Add(1)
	}
}

// Contains reports whether src is cached in memory, without touching
// recency.
func (c *Cache) Contains(src string) bool {
	return c.entries.Contains(hash.SourceKey(src))
}

// Invalidate drops the entry for src from memory. The second-level store
// is left alone.
func (c *Cache) Invalidate(src string) bool {
	key := hash.SourceKey(src)
	present := c.entries.Contains(key)
	c.entries.Remove(key)
	return present
}

// Purge drops every in-memory entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		StoreHits: c.storeHits.Load(),
		Compiles:  c.compiles.Load(),
		Failures:  c.failures.Load(),
		Coalesced: c.coalesced.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.entries.Len(),
		Capacity:  c.capacity,
	}
}
