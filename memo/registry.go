package memo

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/memocache/cache"
)

// Options configures a Registry. The zero value is valid:
//   - nil Constructor => cache.Identity()
//   - nil Logger      => zap.NewNop()
//   - nil Metrics     => NoopMetrics
type Options struct {
	// Constructor builds caches for identities registered without one.
	Constructor cache.Constructor
	Logger      *zap.Logger
	Metrics     Metrics
}

type ctorRecord struct {
	ctor cache.Constructor
	desc string
}

// Registry maps callable identities to their caches and cache constructors.
// All methods are safe for concurrent use by multiple goroutines.
type Registry struct {
	opt Options
	log *zap.Logger

	mu      sync.RWMutex
	caches  map[Identity]cache.Cache
	ctors   map[Identity]ctorRecord
	handles map[StaticID]*Handle

	// identities with a constructor record, by kind
	static, dynamic int
}

// New creates an empty registry.
func New(opt Options) *Registry {
	if opt.Constructor == nil {
		opt.Constructor = cache.Identity()
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	return &Registry{
		opt:     opt,
		log:     opt.Logger.With(zap.String("component", "memo")),
		caches:  make(map[Identity]cache.Cache),
		ctors:   make(map[Identity]ctorRecord),
		handles: make(map[StaticID]*Handle),
	}
}

var defaultRegistry = sync.OnceValue(func() *Registry { return New(Options{}) })

// Default returns the process-wide registry used by the package-level
// functions and by typed wrappers built without WithRegistry.
func Default() *Registry { return defaultRegistry() }

// GetOrCreateCache returns the cache of id, creating it on first use with the
// recorded constructor, else ctor, else the registry default. The
// constructor used is recorded when id had none.
func (r *Registry) GetOrCreateCache(id Identity, ctor cache.Constructor) cache.Cache {
	r.mu.RLock()
	c, ok := r.caches[id]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[id]; ok { // double-check
		return c
	}
	rec, ok := r.ctors[id]
	if !ok {
		rec = r.recordLocked(id, r.ctorOr(ctor))
	}
	c = rec.ctor.New()
	r.caches[id] = c
	return c
}

// RecordConstructor binds id to ctor (nil => registry default). Binding the
// same descriptor again is a no-op; a different descriptor fails with a
// *CacheTypeConflictError and leaves the registry unchanged.
func (r *Registry) RecordConstructor(id Identity, ctor cache.Constructor) error {
	ctor = r.ctorOr(ctor)
	desc := cache.Describe(ctor)

	r.mu.RLock()
	rec, ok := r.ctors[id]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		rec, ok = r.ctors[id]
		if !ok {
			r.recordLocked(id, ctor)
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()
	}
	if rec.desc == desc {
		return nil
	}
	r.log.Warn("cache type conflict",
		zap.Stringer("identity", id),
		zap.String("existing", rec.desc),
		zap.String("requested", desc))
	return &CacheTypeConflictError{Identity: id, Existing: rec.desc, Requested: desc}
}

// recordLocked stores the constructor of a new identity. Callers hold r.mu.
func (r *Registry) recordLocked(id Identity, ctor cache.Constructor) ctorRecord {
	rec := ctorRecord{ctor: ctor, desc: cache.Describe(ctor)}
	r.ctors[id] = rec
	switch d := id.(type) {
	case dynamicID:
		r.dynamic++
		if tok := d.ref.Value(); tok != nil {
			runtime.AddCleanup(tok, r.forget, d)
		}
	default:
		r.static++
	}
	r.opt.Metrics.Identities(r.static, r.dynamic)
	return rec
}

// forget drops everything held for a reclaimed instance.
func (r *Registry) forget(id dynamicID) {
	r.mu.Lock()
	if _, ok := r.ctors[id]; ok {
		delete(r.ctors, id)
		r.dynamic--
		r.opt.Metrics.Identities(r.static, r.dynamic)
	}
	delete(r.caches, id)
	r.mu.Unlock()
	r.log.Debug("instance reclaimed", zap.Stringer("identity", id))
}

func (r *Registry) ctorOr(ctor cache.Constructor) cache.Constructor {
	if ctor == nil {
		return r.opt.Constructor
	}
	return ctor
}

// Clear empties the cache of id. It reports whether a cache existed; an
// identity that never cached anything is a no-op.
func (r *Registry) Clear(id Identity) bool {
	return r.clear(id, ClearExplicit)
}

func (r *Registry) clear(id Identity, reason ClearReason) bool {
	r.mu.RLock()
	c, ok := r.caches[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	c.Clear()
	r.opt.Metrics.Clear(id.Name(), reason)
	return true
}

// ClearMatching empties the cache of every live identity accepted by pred
// and returns how many caches were cleared.
func (r *Registry) ClearMatching(pred func(Identity) bool) int {
	return r.clearMatching(pred, ClearExplicit)
}

func (r *Registry) clearMatching(pred func(Identity) bool, reason ClearReason) int {
	type victim struct {
		id Identity
		c  cache.Cache
	}
	var victims []victim
	r.mu.RLock()
	for id, c := range r.caches {
		if d, ok := id.(dynamicID); ok && !d.alive() {
			continue
		}
		if pred(id) {
			victims = append(victims, victim{id, c})
		}
	}
	r.mu.RUnlock()

	// clear outside the registry lock; each cache clears atomically
	for _, v := range victims {
		v.c.Clear()
		r.opt.Metrics.Clear(v.id.Name(), reason)
	}
	return len(victims)
}

// Len returns the number of live caches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caches)
}

// Identities lists every identity bound to a constructor whose owner is
// still reachable.
func (r *Registry) Identities() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, 0, len(r.ctors))
	for id := range r.ctors {
		if d, ok := id.(dynamicID); ok && !d.alive() {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Stats is a registry snapshot.
type Stats struct {
	Static  int // static identities bound to a constructor
	Dynamic int // dynamic identities not yet reclaimed
	Caches  int // caches created so far and not reclaimed
	Entries int // memoized results across all caches
}

// Stats returns a snapshot. Entries is summed after the registry lock is
// released, so it may include concurrent inserts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	st := Stats{Static: r.static, Dynamic: r.dynamic, Caches: len(r.caches)}
	caches := make([]cache.Cache, 0, len(r.caches))
	for _, c := range r.caches {
		caches = append(caches, c)
	}
	r.mu.RUnlock()

	for _, c := range caches {
		st.Entries += c.Len()
	}
	return st
}
