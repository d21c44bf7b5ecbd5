package cache

import (
	"time"

	"github.com/IvanBrykalov/memocache/policy"
)

// EvictReason explains why a memoized result left a bounded cache.
type EvictReason int

const (
	// EvictPolicy: nominated by the eviction policy (e.g. 2Q probation overflow).
	EvictPolicy EvictReason = iota
	// EvictTTL: the result outlived its TTL (lazy, on access).
	EvictTTL
	// EvictCapacity: trimmed to keep the shard within its entry capacity.
	EvictCapacity
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "policy"
	}
}

// Metrics exposes bounded-cache observability hooks.
// NoopMetrics is used when none is configured.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// Size reports the resident entries of the shard that changed last,
	// or 0 after a Clear.
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a bounded cache. Zero values are safe except
// Capacity; defaults are applied by Bounded():
//   - nil Policy   => LRU
//   - Shards <= 0  => automatic (power of two)
//   - nil Metrics  => NoopMetrics
//   - Equality     => IdentityEquality
type Options struct {
	// Capacity is the entry limit across all shards. Must be > 0.
	Capacity int

	// Shards is rounded up to a power of two; 0 picks ≈ 2*GOMAXPROCS.
	// Use 1 for a globally ordered LRU.
	Shards int

	// Policy is the eviction policy; nil => LRU.
	Policy policy.Policy

	// Equality decides which argument keys are the same call.
	Equality Equality

	// DefaultTTL expires memoized results after the given duration (0 = never).
	DefaultTTL time.Duration

	// OnEvict is called under the shard lock; keep it lightweight.
	// It is not called for Clear.
	OnEvict func(fingerprint string, v any, reason EvictReason)
	Metrics Metrics

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}
