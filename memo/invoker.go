package memo

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/memocache/cache"
)

// Producer computes the result of one call on a cache miss. A non-nil error
// is returned to the caller as is and nothing is stored.
type Producer func() (any, error)

// Handle is the registration of one static identity. Every registration of
// the identity returns the same *Handle, so all call sites share one
// fast-path slot.
type Handle struct {
	reg *Registry
	id  StaticID

	slot          atomic.Pointer[cacheBox]
	epoch         atomic.Uint64
	registrations atomic.Uint64
}

type cacheBox struct{ c cache.Cache }

// Register records a (re)definition of the static identity d.
//
// The first registration binds d to ctor (nil => registry default); a later
// one with a different constructor fails with ErrCacheTypeConflict. A
// re-registration with topLevel set clears the cache of d and bumps the
// handle's epoch, since the implementation behind d may have changed.
// Nested (non-top-level) re-registrations keep the cache.
func (r *Registry) Register(d StaticID, ctor cache.Constructor, topLevel bool) (*Handle, error) {
	if d.Symbol == "" {
		return nil, unresolvable(d, "empty symbol")
	}
	if err := r.RecordConstructor(d, ctor); err != nil {
		return nil, err
	}

	r.mu.Lock()
	h, ok := r.handles[d]
	if !ok {
		h = &Handle{reg: r, id: d}
		r.handles[d] = h
	}
	r.mu.Unlock()

	n := h.registrations.Add(1)
	if n > 1 && topLevel {
		h.epoch.Add(1)
		cleared := r.clear(d, ClearRedefinition)
		r.log.Info("redefinition",
			zap.Stringer("identity", d),
			zap.Uint64("epoch", h.epoch.Load()),
			zap.Bool("cleared", cleared))
		return h, nil
	}
	r.log.Debug("registered",
		zap.Stringer("identity", d),
		zap.Uint64("registrations", n),
		zap.Bool("top_level", topLevel))
	return h, nil
}

// Identity returns the static identity the handle was registered for.
func (h *Handle) Identity() Identity { return h.id }

// Epoch counts top-level redefinitions since the first registration.
func (h *Handle) Epoch() uint64 { return h.epoch.Load() }

// Invoke returns the memoized result for k, running produce on a miss.
// After the first call the cache is read from the handle's slot without
// touching the registry.
func (h *Handle) Invoke(k cache.Key, produce Producer) (any, error) {
	if produce == nil {
		return nil, ErrNilProducer
	}
	b := h.slot.Load()
	if b == nil {
		// Static caches are never replaced, only emptied, so the slot
		// stays valid once installed.
		h.slot.CompareAndSwap(nil, &cacheBox{c: h.reg.GetOrCreateCache(h.id, nil)})
		b = h.slot.Load()
	}
	return h.reg.getOrInsert(h.id, b.c, k, produce)
}

// Invoke resolves target on every call and returns the memoized result for
// k. target is a *Handle, an Identity, a value carrying an Instance, a typed
// wrapper, or a top-level func (bound to the default constructor on first
// use).
func (r *Registry) Invoke(target any, k cache.Key, produce Producer) (any, error) {
	if produce == nil {
		return nil, ErrNilProducer
	}
	id, ctor, err := r.resolve(target)
	if err != nil {
		return nil, err
	}
	if ctor != nil {
		if err := r.RecordConstructor(id, ctor); err != nil {
			return nil, err
		}
	}
	return r.getOrInsert(id, r.GetOrCreateCache(id, ctor), k, produce)
}

// IdentityOf returns the identity target is memoized under.
func (r *Registry) IdentityOf(target any) (Identity, error) {
	id, _, err := r.resolve(target)
	return id, err
}

// resolve maps a callable to its identity and, for instances, the
// constructor they ask for. A nil constructor means "whatever is recorded".
func (r *Registry) resolve(target any) (Identity, cache.Constructor, error) {
	switch t := target.(type) {
	case nil:
		return nil, nil, unresolvable(target, "nil callable")
	case *Handle:
		if t == nil {
			return nil, nil, unresolvable(target, "nil handle")
		}
		if t.reg != r {
			return nil, nil, unresolvable(target, "handle belongs to another registry")
		}
		return t.id, nil, nil
	case dynamicID:
		if !t.alive() {
			return nil, nil, unresolvable(target, "instance reclaimed")
		}
		return t, nil, nil
	case Identity:
		return t, nil, nil
	case bound:
		bt := t.boundTarget()
		if bt.h != nil {
			return r.resolve(bt.h)
		}
		return bt.inst.identity(bt.inst), bt.inst.constructor(r.opt.Constructor), nil
	case instancer:
		in := t.memoInstance()
		return in.identity(target), in.constructor(r.opt.Constructor), nil
	}

	kind, err := Classify(target)
	if err != nil {
		return nil, nil, err
	}
	if kind == Dynamic {
		return nil, nil, unresolvable(target, "closure state is only tracked through an Instance")
	}
	id, err := DescribeFunc(target)
	if err != nil {
		return nil, nil, err
	}
	return id, nil, nil
}

// invokeInstance memoizes through the per-instance cache; instances have no
// fast-path slot.
func (r *Registry) invokeInstance(in *Instance, owner any, k cache.Key, produce Producer) (any, error) {
	if produce == nil {
		return nil, ErrNilProducer
	}
	id, ctor := in.identity(owner), in.constructor(r.opt.Constructor)
	if err := r.RecordConstructor(id, ctor); err != nil {
		return nil, err
	}
	return r.getOrInsert(id, r.GetOrCreateCache(id, ctor), k, produce)
}

func (r *Registry) getOrInsert(id Identity, c cache.Cache, k cache.Key, produce Producer) (any, error) {
	computed := false
	v, err := c.GetOrInsert(k, func() (any, error) {
		computed = true
		return produce()
	})
	switch {
	case err != nil:
		r.opt.Metrics.Failure(id.Name())
	case computed:
		r.opt.Metrics.Miss(id.Name())
	default:
		r.opt.Metrics.Hit(id.Name())
	}
	return v, err
}

// Selector picks identities for EmptyCache.
type Selector func(Identity) bool

// ByName selects every identity with the given name, static or dynamic:
// the symbol of a top-level function, or the construction-pattern name of
// an instance.
func ByName(name string) Selector {
	return func(id Identity) bool { return id.Name() == name }
}

// EmptyCache empties the cache of target: a *Handle, an Identity, a value
// carrying an Instance, a typed wrapper, a top-level func, or a Selector.
// Emptying an identity without a cache, or one whose instance has been
// reclaimed, is a no-op.
func (r *Registry) EmptyCache(target any) error {
	switch sel := target.(type) {
	case Selector:
		r.clearMatching(sel, ClearExplicit)
		return nil
	case func(Identity) bool:
		r.clearMatching(sel, ClearExplicit)
		return nil
	case dynamicID:
		if !sel.alive() {
			return nil
		}
	}
	id, _, err := r.resolve(target)
	if err != nil {
		return err
	}
	r.clear(id, ClearExplicit)
	return nil
}

// EmptyAllCaches empties every cache. Constructor records are kept.
func (r *Registry) EmptyAllCaches() {
	n := r.clearMatching(func(Identity) bool { return true }, ClearAll)
	r.log.Info("all caches emptied", zap.Int("caches", n))
}

// Register records d in the default registry.
func Register(d StaticID, ctor cache.Constructor, topLevel bool) (*Handle, error) {
	return Default().Register(d, ctor, topLevel)
}

// Invoke memoizes through the default registry.
func Invoke(target any, k cache.Key, produce Producer) (any, error) {
	return Default().Invoke(target, k, produce)
}

// IdentityOf resolves target in the default registry.
func IdentityOf(target any) (Identity, error) { return Default().IdentityOf(target) }

// EmptyCache empties target's cache in the default registry.
func EmptyCache(target any) error { return Default().EmptyCache(target) }

// EmptyAllCaches empties every cache of the default registry.
func EmptyAllCaches() { Default().EmptyAllCaches() }
