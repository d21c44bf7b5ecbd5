package memo

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheTypeConflict matches every *CacheTypeConflictError.
	ErrCacheTypeConflict = errors.New("memo: cache type conflict")

	// ErrIdentityResolution is returned for values that cannot be mapped to a
	// memo identity: non-callables, nil, and bare closures without an Instance.
	ErrIdentityResolution = errors.New("memo: cannot resolve callable identity")

	// ErrNilProducer is returned when Invoke is called without a producer.
	ErrNilProducer = errors.New("memo: nil producer")
)

// CacheTypeConflictError reports an attempt to bind an identity to a second,
// different cache constructor. The registry state is left unchanged.
type CacheTypeConflictError struct {
	Identity  Identity
	Existing  string
	Requested string
}

func (e *CacheTypeConflictError) Error() string {
	return fmt.Sprintf("memo: cache type conflict for %s: bound to %s, requested %s",
		e.Identity, e.Existing, e.Requested)
}

func (e *CacheTypeConflictError) Is(target error) bool { return target == ErrCacheTypeConflict }

func unresolvable(v any, why string) error {
	return fmt.Errorf("%w: %T: %s", ErrIdentityResolution, v, why)
}
