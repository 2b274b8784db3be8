package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/goclaw/recall/pkg/search"
)

// DefaultSize is used for strategies without a configured cache size.
const DefaultSize = 1000

// LRU keeps one bounded, expiring in-process cache per strategy.
type LRU struct {
	ttl      time.Duration
	recorder Recorder

	mu     sync.Mutex
	sizes  map[string]int
	caches map[string]*expirable.LRU[string, []search.Result]
}

// NewLRU creates a cache whose entries expire after ttl (zero disables
// expiry).
func NewLRU(ttl time.Duration, rec Recorder) *LRU {
	return &LRU{
		ttl:      ttl,
		recorder: rec,
		sizes:    map[string]int{},
		caches:   map[string]*expirable.LRU[string, []search.Result]{},
	}
}

// Configure sets the capacity of a strategy's cache, dropping its current
// entries when the size changes. A size of zero disables caching for the
// strategy.
func (c *LRU) Configure(strategy string, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sizes[strategy]; ok && old == size {
		return
	}
	c.sizes[strategy] = size
	delete(c.caches, strategy)
}

func (c *LRU) cache(strategy string, create bool) *expirable.LRU[string, []search.Result] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lc, ok := c.caches[strategy]; ok {
		return lc
	}
	size, ok := c.sizes[strategy]
	if !ok {
		size = DefaultSize
	}
	if !create || size <= 0 {
		return nil
	}
	lc := expirable.NewLRU[string, []search.Result](size, nil, c.ttl)
	c.caches[strategy] = lc
	return lc
}

func (c *LRU) Get(_ context.Context, key string) ([]search.Result, bool, error) {
	lc := c.cache(StrategyOf(key), false)
	if lc == nil {
		c.record(false)
		return nil, false, nil
	}
	results, ok := lc.Get(key)
	c.record(ok)
	return clone(results), ok, nil
}

func (c *LRU) Set(_ context.Context, key string, results []search.Result) error {
	if lc := c.cache(StrategyOf(key), true); lc != nil {
		lc.Add(key, clone(results))
	}
	return nil
}

func (c *LRU) Purge(_ context.Context, strategy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strategy == "" {
		for _, lc := range c.caches {
			lc.Purge()
		}
		return nil
	}
	if lc, ok := c.caches[strategy]; ok {
		lc.Purge()
	}
	return nil
}

// Len returns the number of cached entries of a strategy.
func (c *LRU) Len(strategy string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lc, ok := c.caches[strategy]; ok {
		return lc.Len()
	}
	return 0
}

func (c *LRU) record(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheRequest("hit")
	} else {
		c.recorder.RecordCacheRequest("miss")
	}
}
