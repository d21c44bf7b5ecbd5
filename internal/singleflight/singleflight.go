// Package singleflight coalesces concurrent computations of the same key.
package singleflight

import (
	"fmt"
	"sync"
)

// Group coalesces concurrent calls for the same key K so that fn runs at
// most once per in-flight key. Other callers block until the leader
// publishes its result.
//
// Concurrency notes:
//   - The first caller for a key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - There is no cancellation: followers wait for the leader to finish.
//   - If fn panics, followers receive a *PanicError and the panic is
//     re-raised in the leader's goroutine.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
}

// PanicError is handed to followers whose leader panicked inside fn.
type PanicError struct {
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("singleflight: leader panicked: %v", p.Value)
}

// Do runs fn once for the given key. Concurrent calls with the same key wait
// for the shared result; shared reports whether this caller was a follower.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.val, c.err, true
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)
	return c.val, c.err, false
}

// InFlight reports how many keys currently have a running leader.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

// run executes fn outside the lock and always publishes, even on panic.
func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	returned := false
	defer func() {
		if returned {
			g.finish(key, c)
			return
		}
		r := recover()
		c.err = &PanicError{Value: r}
		g.finish(key, c)
		if r != nil {
			panic(r)
		}
		// r == nil: runtime.Goexit, let it continue unwinding.
	}()
	c.val, c.err = fn()
	returned = true
}

func (g *Group[K, V]) finish(key K, c *call[V]) {
	close(c.done)
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
