// Package memo manages one memo cache per memoized callable.
//
// A callable is identified either statically or dynamically:
//
//   - Static: a top-level function, identified by its declared name and
//     signature (StaticID). All calls share one cache for the life of the
//     process, and re-registering the function at top level (a
//     redefinition) empties it.
//
//   - Dynamic: one closure or callable-object instance, identified by an
//     Instance. Each instance has its own cache; the registry refers to the
//     instance weakly and drops the cache once the instance is collected.
//
// Every identity is bound to exactly one cache constructor. Asking for a
// different one later fails with ErrCacheTypeConflict.
//
// # Invocation
//
// Handle.Invoke is the fast path for static functions: after the first call
// the cache is read from an atomic slot on the handle. Registry.Invoke
// resolves its target on every call. Both reach the same cache. Producers
// run at most once per key at a time; a producer error is returned as is
// and never memoized.
//
// Typed wrappers hide the key plumbing:
//
//	func fib(n int) int { ... }
//
//	var memoFib, _ = memo.Static1(fib)
//	memoFib.Call(40)
//
//	func adder(base int) *memo.Func1[int, int] {
//	    return memo.Closure1(func(x int) int { return base + x })
//	}
//
// Clearing
//
//	memo.EmptyCache(memoFib)                  // one identity
//	memo.EmptyCache(memo.ByName("main.fib"))  // every identity with that name
//	memo.EmptyAllCaches()
package memo
