package memo

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/memocache/cache"
)

type recordingMetrics struct {
	mu       sync.Mutex
	hits     map[string]int
	misses   map[string]int
	failures map[string]int
	clears   map[ClearReason]int
	static   int
	dynamic  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		hits:     map[string]int{},
		misses:   map[string]int{},
		failures: map[string]int{},
		clears:   map[ClearReason]int{},
	}
}

func (m *recordingMetrics) Hit(name string)     { m.mu.Lock(); m.hits[name]++; m.mu.Unlock() }
func (m *recordingMetrics) Miss(name string)    { m.mu.Lock(); m.misses[name]++; m.mu.Unlock() }
func (m *recordingMetrics) Failure(name string) { m.mu.Lock(); m.failures[name]++; m.mu.Unlock() }

func (m *recordingMetrics) Clear(_ string, reason ClearReason) {
	m.mu.Lock()
	m.clears[reason]++
	m.mu.Unlock()
}

func (m *recordingMetrics) Identities(static, dynamic int) {
	m.mu.Lock()
	m.static, m.dynamic = static, dynamic
	m.mu.Unlock()
}

func (m *recordingMetrics) identities() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.static, m.dynamic
}

func TestGetOrCreateCache_OnePerIdentity(t *testing.T) {
	t.Parallel()

	r := New(Options{})
	id := StaticID{Symbol: "one", Signature: "func()"}

	caches := make([]cache.Cache, 32)
	var g errgroup.Group
	for i := range caches {
		g.Go(func() error {
			caches[i] = r.GetOrCreateCache(id, nil)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, c := range caches[1:] {
		assert.Same(t, caches[0], c)
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []Identity{id}, r.Identities())
}

func TestGetOrCreateCache_UsesRecordedConstructor(t *testing.T) {
	t.Parallel()

	r := New(Options{})
	id := StaticID{Symbol: "bounded", Signature: "func(int) int"}
	ctor := cache.Bounded(cache.Options{Capacity: 2, Shards: 1})
	require.NoError(t, r.RecordConstructor(id, ctor))

	c := r.GetOrCreateCache(id, nil)
	for i := 0; i < 5; i++ {
		_, err := c.GetOrInsert(cache.Args(i), func() (any, error) { return i, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	require.NoError(t, r.RecordConstructor(id, cache.Bounded(cache.Options{Capacity: 2, Shards: 1})))
	err := r.RecordConstructor(id, cache.Bounded(cache.Options{Capacity: 3, Shards: 1}))
	assert.ErrorIs(t, err, ErrCacheTypeConflict)
}

func TestClear_NoCacheIsNoop(t *testing.T) {
	t.Parallel()

	r := New(Options{})
	id := StaticID{Symbol: "never", Signature: "func()"}
	assert.False(t, r.Clear(id))
	assert.Zero(t, r.Len())

	r.GetOrCreateCache(id, nil)
	assert.True(t, r.Clear(id))
	assert.True(t, r.Clear(id))
}

func TestClearMatching_Count(t *testing.T) {
	t.Parallel()

	r := New(Options{})
	for _, s := range []string{"a.x", "a.y", "b.x"} {
		c := r.GetOrCreateCache(StaticID{Symbol: s, Signature: "func()"}, nil)
		_, err := c.GetOrInsert(cache.Args(), func() (any, error) { return s, nil })
		require.NoError(t, err)
	}
	n := r.ClearMatching(func(id Identity) bool { return id.Name()[0] == 'a' })
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, r.Stats().Entries)
}

func TestDynamicIdentity_Reclaimed(t *testing.T) {
	m := newRecordingMetrics()
	r := New(Options{Metrics: m})

	func() {
		f := Closure1(func(x int) int { return x }, WithRegistry(r))
		assert.Equal(t, 1, f.Call(1))
		assert.Equal(t, 1, r.Stats().Dynamic)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		st := r.Stats()
		return st.Dynamic == 0 && st.Caches == 0
	}, 5*time.Second, 10*time.Millisecond)

	_, dynamic := m.identities()
	assert.Zero(t, dynamic)
	assert.Empty(t, r.Identities())
}

func TestEmptyCache_ReclaimedInstanceIsNoop(t *testing.T) {
	r := New(Options{})

	var id Identity
	func() {
		f := Closure1(func(x int) int { return x }, WithRegistry(r))
		assert.Equal(t, 1, f.Call(1))
		id = f.Identity()
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return !id.(dynamicID).alive()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, r.EmptyCache(id))
	_, err := r.Invoke(id, cache.Args(1), func() (any, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrIdentityResolution)
}

func TestMetrics_HitMissFailureClear(t *testing.T) {
	t.Parallel()

	m := newRecordingMetrics()
	r := New(Options{Metrics: m})
	id := StaticID{Symbol: "metered", Signature: "func(int) int"}
	h, err := r.Register(id, nil, true)
	require.NoError(t, err)

	_, _ = h.Invoke(cache.Args(1), counted(new(int64), 1))
	_, _ = h.Invoke(cache.Args(1), counted(new(int64), 1))
	_, _ = h.Invoke(cache.Args(2), func() (any, error) { return nil, assert.AnError })
	_, err = r.Register(id, nil, true)
	require.NoError(t, err)
	require.NoError(t, r.EmptyCache(h))
	r.EmptyAllCaches()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.hits["metered"])
	assert.Equal(t, 1, m.misses["metered"])
	assert.Equal(t, 1, m.failures["metered"])
	assert.Equal(t, 1, m.clears[ClearRedefinition])
	assert.Equal(t, 1, m.clears[ClearExplicit])
	assert.Equal(t, 1, m.clears[ClearAll])
	assert.Equal(t, 1, m.static)
}

func TestLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	r := New(Options{Logger: zap.New(core)})
	id := StaticID{Symbol: "logged", Signature: "func()"}

	_, err := r.Register(id, nil, true)
	require.NoError(t, err)
	_, err = r.Register(id, nil, true)
	require.NoError(t, err)
	_, err = r.Register(id, cache.Value(), true)
	require.Error(t, err)

	assert.Equal(t, 1, logs.FilterMessage("registered").Len())

	redef := logs.FilterMessage("redefinition").All()
	require.Len(t, redef, 1)
	assert.Equal(t, zapcore.InfoLevel, redef[0].Level)
	assert.Equal(t, "memo", redef[0].ContextMap()["component"])
	assert.Equal(t, id.String(), redef[0].ContextMap()["identity"])

	conflict := logs.FilterMessage("cache type conflict").All()
	require.Len(t, conflict, 1)
	assert.Equal(t, zapcore.WarnLevel, conflict[0].Level)
}

func TestStats(t *testing.T) {
	t.Parallel()

	r := New(Options{})
	sq, err := Static1(square, WithRegistry(r), WithCache(cache.Value()))
	require.NoError(t, err)
	g := makeConst(r, 10)

	sq.Call(2)
	sq.Call(3)
	g.Call(1)

	assert.Equal(t, Stats{Static: 1, Dynamic: 1, Caches: 2, Entries: 3}, r.Stats())
	assert.Len(t, r.Identities(), 2)
	runtime.KeepAlive(g)
}
