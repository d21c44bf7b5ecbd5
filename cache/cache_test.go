package cache

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/memocache/policy/twoq"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

func counting(calls *int64, v any) func() (any, error) {
	return func() (any, error) {
		atomic.AddInt64(calls, 1)
		return v, nil
	}
}

func constructors() map[string]Constructor {
	return map[string]Constructor{
		"identity": Identity(),
		"value":    Value(),
		"bounded":  Bounded(Options{Capacity: 64, Shards: 4}),
	}
}

// Every built-in kind computes once per key and serves hits afterwards.
func TestGetOrInsert_ComputesOncePerKey(t *testing.T) {
	t.Parallel()

	for name, ctor := range constructors() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := ctor.New()
			var calls int64
			for i := 0; i < 3; i++ {
				v, err := c.GetOrInsert(Args(1), counting(&calls, "one"))
				require.NoError(t, err)
				assert.Equal(t, "one", v)
			}
			assert.EqualValues(t, 1, calls)
			assert.Equal(t, 1, c.Len())

			v, ok := c.Peek(Args(1))
			assert.True(t, ok)
			assert.Equal(t, "one", v)
		})
	}
}

// A failed computation is returned verbatim and not memoized.
func TestGetOrInsert_FailureNotMemoized(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	for name, ctor := range constructors() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := ctor.New()
			var calls int64
			_, err := c.GetOrInsert(Args("k"), func() (any, error) {
				atomic.AddInt64(&calls, 1)
				return nil, boom
			})
			require.ErrorIs(t, err, boom)
			assert.Equal(t, 0, c.Len())

			v, err := c.GetOrInsert(Args("k"), counting(&calls, 7))
			require.NoError(t, err)
			assert.Equal(t, 7, v)
			assert.EqualValues(t, 2, calls)
		})
	}
}

// Clear empties the table; it stays usable and recomputes.
func TestClear_EmptiesAndRecomputes(t *testing.T) {
	t.Parallel()

	for name, ctor := range constructors() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := ctor.New()
			var calls int64
			_, _ = c.GetOrInsert(Args(1), counting(&calls, 1))
			_, _ = c.GetOrInsert(Args(2), counting(&calls, 2))

			c.Clear()
			c.Clear() // idempotent
			assert.Equal(t, 0, c.Len())
			_, ok := c.Peek(Args(1))
			assert.False(t, ok)

			_, _ = c.GetOrInsert(Args(1), counting(&calls, 1))
			assert.EqualValues(t, 3, calls)
		})
	}
}

// Identity tables tell equal-content slices apart; value tables do not.
func TestEqualityKinds_Slices(t *testing.T) {
	t.Parallel()

	a := []int{1, 2}
	b := []int{1, 2}

	var idCalls, valCalls int64
	id := Identity().New()
	val := Value().New()
	for _, s := range [][]int{a, b, a} {
		_, _ = id.GetOrInsert(Args(s), counting(&idCalls, len(s)))
		_, _ = val.GetOrInsert(Args(s), counting(&valCalls, len(s)))
	}
	assert.EqualValues(t, 2, idCalls, "identity: a and b are different keys")
	assert.EqualValues(t, 1, valCalls, "value: a and b are the same key")
}

// Concurrent misses on one key run the producer once.
func TestGetOrInsert_Coalesced(t *testing.T) {
	t.Parallel()

	for name, ctor := range constructors() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := ctor.New()
			var calls int64
			var g errgroup.Group
			for i := 0; i < 64; i++ {
				g.Go(func() error {
					v, err := c.GetOrInsert(Args("same"), func() (any, error) {
						atomic.AddInt64(&calls, 1)
						time.Sleep(5 * time.Millisecond)
						return "v", nil
					})
					if err != nil {
						return err
					}
					if v != "v" {
						return fmt.Errorf("got %v", v)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
		})
	}
}

// Single shard, capacity 2: a hit promotes "a", so inserting "c" drops "b".
func TestBounded_EvictionLRU(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := Bounded(Options{
		Capacity: 2,
		Shards:   1,
		OnEvict:  func(fp string, _ any, _ EvictReason) { evicted = append(evicted, fp) },
	}).New()

	var calls int64
	_, _ = c.GetOrInsert(Args("a"), counting(&calls, 1))
	_, _ = c.GetOrInsert(Args("b"), counting(&calls, 2))
	_, _ = c.GetOrInsert(Args("a"), counting(&calls, 1)) // hit, promote
	_, _ = c.GetOrInsert(Args("c"), counting(&calls, 3))

	_, ok := c.Peek(Args("b"))
	assert.False(t, ok, "b must be evicted")
	_, ok = c.Peek(Args("a"))
	assert.True(t, ok, "a must survive")
	require.Len(t, evicted, 1)

	fpB, err := Fingerprint(IdentityEquality, Args("b"))
	require.NoError(t, err)
	assert.Equal(t, fpB, evicted[0])
}

// TTL expiry uses the injected clock.
func TestBounded_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := Bounded(Options{Capacity: 4, Shards: 1, DefaultTTL: 100 * time.Millisecond, Clock: clk}).New()

	var calls int64
	_, _ = c.GetOrInsert(Args("x"), counting(&calls, 1))
	_, _ = c.GetOrInsert(Args("x"), counting(&calls, 1))
	assert.EqualValues(t, 1, calls)

	clk.add(200 * time.Millisecond)
	_, ok := c.Peek(Args("x"))
	assert.False(t, ok, "expired result must not be visible")
	_, _ = c.GetOrInsert(Args("x"), counting(&calls, 1))
	assert.EqualValues(t, 2, calls)

	st := c.(StatsReporter).Stats()
	assert.EqualValues(t, 1, st.Evictions)
}

// Clear resets 2Q history along with the entries.
func TestBounded_TwoQClear(t *testing.T) {
	t.Parallel()

	c := Bounded(Options{Capacity: 8, Shards: 1, Policy: twoq.New(2, 4)}).New()
	var calls int64
	for i := 0; i < 6; i++ {
		_, _ = c.GetOrInsert(Args(i), counting(&calls, i))
	}
	assert.LessOrEqual(t, c.Len(), 8)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.(StatsReporter).Stats().Entries)
}

func TestBounded_PanicsOnZeroCapacity(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Bounded(Options{}) })
}

func TestDescriptors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "identity", Identity().Descriptor())
	assert.Equal(t, "value", Value().Descriptor())
	assert.Equal(t,
		"bounded(policy=lru,capacity=10,shards=4,ttl=0s,equality=identity)",
		Bounded(Options{Capacity: 10, Shards: 3}).Descriptor())
	assert.Equal(t,
		"bounded(policy=2q(in=2,ghost=4),capacity=10,shards=1,ttl=1s,equality=value)",
		Bounded(Options{Capacity: 10, Shards: 1, Policy: twoq.New(2, 4), DefaultTTL: time.Second, Equality: ValueEquality}).Descriptor())

	assert.Equal(t, Describe(Identity()), Describe(Identity()))
	assert.NotEqual(t, Describe(Identity()), Describe(Value()))
	assert.Equal(t, "<nil>", Describe(nil))
}

func newIdentityTable() Cache { return Identity().New() }

func TestConstructorFunc_Descriptor(t *testing.T) {
	t.Parallel()

	f := ConstructorFunc(newIdentityTable)
	assert.Contains(t, f.Descriptor(), "newIdentityTable")
	assert.Equal(t, f.Descriptor(), ConstructorFunc(newIdentityTable).Descriptor())
	assert.NotNil(t, f.New())
	assert.Equal(t, "func:nil", ConstructorFunc(nil).Descriptor())
}

type heapBox struct {
	n int
	_ [3]int
}

// Under IdentityEquality a stored entry keeps its arguments alive, so a
// freshly allocated object can never take over a collected key's address
// and inherit its result.
func TestIdentityKeys_AddressNotReused(t *testing.T) {
	t.Parallel()

	for name, ctor := range map[string]Constructor{
		"identity": Identity(),
		"bounded":  Bounded(Options{Capacity: 1 << 20, Shards: 4}),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := ctor.New()
			insert := func(b *heapBox) (any, error) {
				return c.GetOrInsert(Args(b), func() (any, error) { return b.n, nil })
			}
			func() {
				for i := 0; i < 1000; i++ {
					_, err := insert(&heapBox{n: i})
					require.NoError(t, err)
				}
			}()
			runtime.GC()
			runtime.GC()

			for i := 0; i < 100_000; i++ {
				v, err := insert(&heapBox{n: -1})
				require.NoError(t, err)
				if v != -1 {
					t.Fatalf("fresh object got memoized result %v", v)
				}
			}
		})
	}
}
