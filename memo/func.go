package memo

import (
	"reflect"

	"github.com/IvanBrykalov/memocache/cache"
)

// bound is implemented by the typed wrappers, which carry their identity.
type bound interface {
	boundTarget() *target
}

// target is either a static handle or a dynamic instance.
type target struct {
	reg  *Registry
	h    *Handle
	inst *Instance
}

func (t *target) kind() Kind {
	if t.inst != nil {
		return Dynamic
	}
	return Static
}

func (t *target) invoke(k cache.Key, produce Producer) (any, error) {
	if t.h != nil {
		return t.h.Invoke(k, produce)
	}
	return t.reg.invokeInstance(t.inst, t.inst, k, produce)
}

func (t *target) identity() Identity {
	if t.h != nil {
		return t.h.id
	}
	return t.inst.identity(t.inst)
}

// Option configures a typed wrapper.
type Option func(*wrapConfig)

type wrapConfig struct {
	reg      *Registry
	name     string
	ctor     cache.Constructor
	topLevel bool
}

func newWrapConfig(opts []Option) wrapConfig {
	cfg := wrapConfig{topLevel: true}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.reg == nil {
		cfg.reg = Default()
	}
	return cfg
}

// WithRegistry memoizes through r instead of the default registry.
func WithRegistry(r *Registry) Option { return func(c *wrapConfig) { c.reg = r } }

// WithName overrides the identity name. For static wrappers it replaces the
// runtime symbol, which also allows registering a func literal under a
// stable name.
func WithName(name string) Option { return func(c *wrapConfig) { c.name = name } }

// WithCache selects the cache constructor (default: the registry's).
func WithCache(ctor cache.Constructor) Option { return func(c *wrapConfig) { c.ctor = ctor } }

// NotTopLevel marks a registration made from inside a function body.
// Re-registering it does not clear the cache.
func NotTopLevel() Option { return func(c *wrapConfig) { c.topLevel = false } }

func staticTarget(fn any, cfg wrapConfig) (*target, error) {
	var (
		id  StaticID
		err error
	)
	if reflect.ValueOf(fn).IsNil() {
		return nil, unresolvable(fn, "nil func")
	}
	if cfg.name != "" {
		id = StaticID{Symbol: cfg.name, Signature: reflect.TypeOf(fn).String()}
	} else if id, err = DescribeFunc(fn); err != nil {
		return nil, err
	}
	h, err := cfg.reg.Register(id, cfg.ctor, cfg.topLevel)
	if err != nil {
		return nil, err
	}
	return &target{reg: cfg.reg, h: h}, nil
}

func dynamicTarget(fn any, cfg wrapConfig) *target {
	name := cfg.name
	if name == "" {
		name = funcSymbol(reflect.ValueOf(fn))
	}
	return &target{reg: cfg.reg, inst: NewInstance(name, cfg.ctor)}
}

// as converts a memoized result back to R; nil stays the zero value.
func as[R any](v any) R {
	r, _ := v.(R)
	return r
}

// Func1 is a memoized one-argument function.
type Func1[A, R any] struct {
	t  *target
	fn func(A) R
}

// Static1 memoizes a top-level function under its static identity.
func Static1[A, R any](fn func(A) R, opts ...Option) (*Func1[A, R], error) {
	t, err := staticTarget(fn, newWrapConfig(opts))
	if err != nil {
		return nil, err
	}
	return &Func1[A, R]{t: t, fn: fn}, nil
}

// Closure1 memoizes fn under a fresh dynamic identity: each call of
// Closure1 yields its own cache, reclaimed together with the result.
func Closure1[A, R any](fn func(A) R, opts ...Option) *Func1[A, R] {
	return &Func1[A, R]{t: dynamicTarget(fn, newWrapConfig(opts)), fn: fn}
}

// Call returns fn(a), memoized. It panics when a cannot be used as a key.
func (f *Func1[A, R]) Call(a A) R {
	r, err := f.Try(a)
	if err != nil {
		panic(err)
	}
	return r
}

// Try is Call returning key errors instead of panicking.
func (f *Func1[A, R]) Try(a A) (R, error) {
	v, err := f.t.invoke(cache.Args(a), func() (any, error) { return f.fn(a), nil })
	return as[R](v), err
}

// Identity returns the identity f is memoized under.
func (f *Func1[A, R]) Identity() Identity { return f.t.identity() }

func (f *Func1[A, R]) boundTarget() *target { return f.t }

// Func2 is a memoized two-argument function.
type Func2[A, B, R any] struct {
	t  *target
	fn func(A, B) R
}

// Static2 memoizes a top-level two-argument function.
func Static2[A, B, R any](fn func(A, B) R, opts ...Option) (*Func2[A, B, R], error) {
	t, err := staticTarget(fn, newWrapConfig(opts))
	if err != nil {
		return nil, err
	}
	return &Func2[A, B, R]{t: t, fn: fn}, nil
}

// Closure2 is Closure1 for two-argument functions.
func Closure2[A, B, R any](fn func(A, B) R, opts ...Option) *Func2[A, B, R] {
	return &Func2[A, B, R]{t: dynamicTarget(fn, newWrapConfig(opts)), fn: fn}
}

// Call returns fn(a, b), memoized. It panics when the arguments cannot be
// used as a key.
func (f *Func2[A, B, R]) Call(a A, b B) R {
	r, err := f.Try(a, b)
	if err != nil {
		panic(err)
	}
	return r
}

// Try is Call returning key errors instead of panicking.
func (f *Func2[A, B, R]) Try(a A, b B) (R, error) {
	v, err := f.t.invoke(cache.Args(a, b), func() (any, error) { return f.fn(a, b), nil })
	return as[R](v), err
}

func (f *Func2[A, B, R]) Identity() Identity { return f.t.identity() }

func (f *Func2[A, B, R]) boundTarget() *target { return f.t }

// FuncE1 is a memoized fallible function. Errors are returned and never
// memoized: the next call with the same argument runs fn again.
type FuncE1[A, R any] struct {
	t  *target
	fn func(A) (R, error)
}

// StaticE1 memoizes a top-level fallible function.
func StaticE1[A, R any](fn func(A) (R, error), opts ...Option) (*FuncE1[A, R], error) {
	t, err := staticTarget(fn, newWrapConfig(opts))
	if err != nil {
		return nil, err
	}
	return &FuncE1[A, R]{t: t, fn: fn}, nil
}

// ClosureE1 is Closure1 for fallible functions.
func ClosureE1[A, R any](fn func(A) (R, error), opts ...Option) *FuncE1[A, R] {
	return &FuncE1[A, R]{t: dynamicTarget(fn, newWrapConfig(opts)), fn: fn}
}

// Call returns fn(a), memoized when err is nil.
func (f *FuncE1[A, R]) Call(a A) (R, error) {
	v, err := f.t.invoke(cache.Args(a), func() (any, error) { return f.fn(a) })
	return as[R](v), err
}

func (f *FuncE1[A, R]) Identity() Identity { return f.t.identity() }

func (f *FuncE1[A, R]) boundTarget() *target { return f.t }
