package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/memocache/internal/singleflight"
)

type mapConstructor struct{ eq Equality }

// Identity returns the default constructor: an unbounded table keyed by
// IdentityEquality.
func Identity() Constructor { return mapConstructor{eq: IdentityEquality} }

// Value returns a constructor for unbounded tables keyed by ValueEquality.
func Value() Constructor { return mapConstructor{eq: ValueEquality} }

func (m mapConstructor) New() Cache {
	return &mapCache{eq: m.eq, m: make(map[string]mapEntry)}
}

func (m mapConstructor) Descriptor() string { return m.eq.String() }

// mapEntry keeps the arguments next to the result: under IdentityEquality
// the fingerprint holds bare addresses, which must not be reused by new
// objects while the entry exists.
type mapEntry struct {
	key Key
	val any
}

// mapCache is an unbounded memo table guarded by one RWMutex.
type mapCache struct {
	eq Equality

	mu sync.RWMutex
	m  map[string]mapEntry

	sf singleflight.Group[string, any]

	hits   atomic.Int64
	misses atomic.Int64
}

func (c *mapCache) GetOrInsert(k Key, produce func() (any, error)) (any, error) {
	fp, err := Fingerprint(c.eq, k)
	if err != nil {
		return nil, err
	}
	if v, ok := c.load(fp); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	v, err, _ := c.sf.Do(fp, func() (any, error) {
		// double-check after flight join
		if v, ok := c.load(fp); ok {
			return v, nil
		}
		v, err := produce()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.m[fp] = mapEntry{key: k, val: v}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (c *mapCache) Peek(k Key) (any, bool) {
	fp, err := Fingerprint(c.eq, k)
	if err != nil {
		return nil, false
	}
	return c.load(fp)
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	c.m = make(map[string]mapEntry)
	c.mu.Unlock()
}

func (c *mapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *mapCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.Len()}
}

func (c *mapCache) load(fp string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[fp]
	c.mu.RUnlock()
	return e.val, ok
}

var (
	_ Cache         = (*mapCache)(nil)
	_ StatsReporter = (*mapCache)(nil)
)
