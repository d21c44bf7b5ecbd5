// Package cache provides the memo tables behind memoized functions: the
// argument key model, the equality fingerprints that decide when two calls
// are the same, the pluggable Cache/Constructor contract, and three
// built-in kinds.
//
// Design
//
//   - Keys: a Key holds the positional arguments and the keyword arguments of
//     one call. Keys are rendered to a canonical fingerprint string under an
//     Equality, and every built-in table is keyed by that fingerprint.
//
//   - Equality: IdentityEquality (default) compares plain values by value and
//     pointers, slices, maps, channels and funcs by address. ValueEquality
//     compares deep content and uses String() for fmt.Stringer arguments.
//
//   - Compute-then-insert: GetOrInsert stores a result only after the
//     producer returned without error, so failures are never memoized.
//     Concurrent misses for one fingerprint are coalesced (singleflight).
//
//   - Kinds: Identity() and Value() build unbounded RWMutex-guarded maps.
//     Bounded(Options) builds a sharded table with a pluggable eviction
//     policy (LRU by default, 2Q in policy/twoq), optional TTL and metrics.
//
//   - Descriptors: every Constructor names its kind and parameters so a
//     registry can refuse to rebuild a function's table with a different kind.
//
// Basic usage
//
//	c := cache.Identity().New()
//	v, err := c.GetOrInsert(cache.Args(1, "a").With("depth", 2), func() (any, error) {
//	    return expensive(1, "a", 2), nil
//	})
//
// A bounded 2Q table
//
//	ctor := cache.Bounded(cache.Options{
//	    Capacity: 50_000,
//	    Shards:   16,
//	    Policy:   twoq.New(800, 1600), // per-shard sizes
//	    Equality: cache.ValueEquality,
//	})
//	c := ctor.New()
package cache
