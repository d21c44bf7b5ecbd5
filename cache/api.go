package cache

import (
	"reflect"
	"runtime"
)

// Cache is one memo table: argument key -> memoized result.
// Built-in implementations are safe for concurrent use; caller-supplied
// ones must at least make GetOrInsert and Clear individually atomic.
type Cache interface {
	// GetOrInsert returns the result stored for k. On a miss it runs produce
	// and stores the result only when produce returns a nil error, so a
	// failed computation is retried by the next call. Concurrent misses for
	// the same key run produce once.
	GetOrInsert(k Key, produce func() (any, error)) (any, error)

	// Peek returns the stored result for k without computing it.
	Peek(k Key) (any, bool)

	// Clear empties the table. The table itself stays usable.
	Clear()

	// Len returns the number of memoized results.
	Len() int
}

// Constructor builds empty caches of one kind.
type Constructor interface {
	New() Cache
	// Descriptor names the kind and its parameters. Two constructors with
	// equal descriptors must build interchangeable caches.
	Descriptor() string
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
	Entries   int
}

// StatsReporter is implemented by caches that count their own activity.
type StatsReporter interface {
	Stats() Stats
}

// ConstructorFunc adapts a bare factory. Its descriptor is the factory's
// symbol name, so two distinct literal closures compare as different even
// when they build the same kind; this is a best-effort check only.
type ConstructorFunc func() Cache

func (f ConstructorFunc) New() Cache { return f() }

func (f ConstructorFunc) Descriptor() string {
	if f == nil {
		return "func:nil"
	}
	if fn := runtime.FuncForPC(reflect.ValueOf(f).Pointer()); fn != nil {
		return "func:" + fn.Name()
	}
	return "func:?"
}

// Describe returns the descriptor used for constructor consistency checks:
// the constructor's Go type followed by its own Descriptor. Comparing types
// first keeps two unrelated implementations apart even when their
// descriptors happen to coincide.
func Describe(c Constructor) string {
	if c == nil {
		return "<nil>"
	}
	return reflect.TypeOf(c).String() + "/" + c.Descriptor()
}
