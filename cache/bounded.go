package cache

import (
	"fmt"
	"time"

	"github.com/IvanBrykalov/memocache/internal/singleflight"
	"github.com/IvanBrykalov/memocache/internal/util"
	"github.com/IvanBrykalov/memocache/policy/lru"
)

type boundedConstructor struct {
	opt Options
}

// Bounded returns a constructor for sharded, size-limited memo tables.
// It panics if opt.Capacity <= 0.
func Bounded(opt Options) Constructor {
	if opt.Capacity <= 0 {
		panic("cache: bounded Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	opt.Shards = util.ShardCount(opt.Shards)
	return boundedConstructor{opt: opt}
}

func (b boundedConstructor) New() Cache { return newBounded(b.opt) }

// Descriptor covers everything that changes which results are kept:
// policy, capacity, shards, TTL and equality. Hooks are not part of it.
func (b boundedConstructor) Descriptor() string {
	return fmt.Sprintf("bounded(policy=%s,capacity=%d,shards=%d,ttl=%s,equality=%s)",
		b.opt.Policy.Name(), b.opt.Capacity, b.opt.Shards, b.opt.DefaultTTL, b.opt.Equality)
}

// bounded is a sharded memo table with a pluggable eviction policy.
// All methods are safe for concurrent use by multiple goroutines.
type bounded struct {
	shards []*shard
	opt    *Options

	// coalesces concurrent misses for the same fingerprint
	sf singleflight.Group[string, any]
}

func newBounded(opt Options) *bounded {
	o := &opt
	n := o.Shards
	perShardCap := (o.Capacity + n - 1) / n // ceil
	c := &bounded{shards: make([]*shard, n), opt: o}
	for i := range c.shards {
		c.shards[i] = newShard(perShardCap, o)
	}
	return c
}

// ---- Cache implementation ----

func (c *bounded) GetOrInsert(k Key, produce func() (any, error)) (any, error) {
	fp, err := Fingerprint(c.opt.Equality, k)
	if err != nil {
		return nil, err
	}
	s := c.shardFor(fp)
	if v, ok := s.get(fp); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(fp, func() (any, error) {
		if v, ok := s.peek(fp); ok {
			return v, nil
		}
		v, err := produce()
		if err != nil {
			return nil, err
		}
		s.put(fp, k, v, c.deadline())
		return v, nil
	})
	return v, err
}

func (c *bounded) Peek(k Key) (any, bool) {
	fp, err := Fingerprint(c.opt.Equality, k)
	if err != nil {
		return nil, false
	}
	return c.shardFor(fp).peek(fp)
}

// Clear locks every shard in index order before emptying any of them, so
// no reader observes a partially cleared table.
func (c *bounded) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
	}
	for _, s := range c.shards {
		s.clearLocked()
	}
	for i := len(c.shards) - 1; i >= 0; i-- {
		c.shards[i].mu.Unlock()
	}
	c.opt.Metrics.Size(0)
}

func (c *bounded) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.length()
	}
	return total
}

func (c *bounded) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		st.Entries += s.length()
	}
	return st
}

// ---- helpers ----

func (c *bounded) shardFor(fp string) *shard {
	return c.shards[util.ShardIndex(util.Hash(fp), len(c.shards))]
}

// deadline converts DefaultTTL into an absolute UnixNano deadline (0 = none).
func (c *bounded) deadline() int64 {
	if c.opt.DefaultTTL <= 0 {
		return 0
	}
	now := time.Now().UnixNano()
	if c.opt.Clock != nil {
		now = c.opt.Clock.NowUnixNano()
	}
	return now + int64(c.opt.DefaultTTL)
}

var (
	_ Cache         = (*bounded)(nil)
	_ StatsReporter = (*bounded)(nil)
)
