package memo

import (
	"reflect"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/memocache/cache"
)

// Instance gives a closure or callable object its own dynamic identity, and
// so its own cache. Embed it in a callable struct, or let Closure1/Closure2
// create one per construction. The zero value is ready to use; an Instance
// must not be copied after first use.
//
// The registry holds instances weakly: once the owner is unreachable, its
// cache and constructor record are dropped.
type Instance struct {
	once sync.Once
	tok  *token
	id   dynamicID

	name string
	ctor cache.Constructor
}

// token is the heap object the registry refers to weakly. It is only
// reachable through its Instance. The name field keeps it out of the tiny
// allocator, which would delay its cleanup.
type token struct {
	id   uuid.UUID
	name string
}

// NewInstance returns an instance named after its construction pattern
// (e.g. "adder.closure") whose cache is built by ctor; a nil ctor uses the
// registry default.
func NewInstance(name string, ctor cache.Constructor) *Instance {
	return &Instance{name: name, ctor: ctor}
}

func (in *Instance) memoInstance() *Instance { return in }

// instancer is implemented by *Instance and every type embedding Instance.
type instancer interface {
	memoInstance() *Instance
}

// identity allocates the token on first use. owner names the instance when
// it was not created by NewInstance.
func (in *Instance) identity(owner any) dynamicID {
	in.once.Do(func() {
		if in.name == "" {
			in.name = ownerName(owner)
		}
		in.tok = &token{id: uuid.New(), name: in.name}
		in.id = dynamicID{ref: weak.Make(in.tok), id: in.tok.id, name: in.name}
	})
	return in.id
}

// constructor returns the instance's cache constructor, or def.
func (in *Instance) constructor(def cache.Constructor) cache.Constructor {
	if in.ctor != nil {
		return in.ctor
	}
	return def
}

func ownerName(owner any) string {
	t := reflect.TypeOf(owner)
	if t == nil {
		return "instance"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
