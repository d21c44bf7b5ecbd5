package memo

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"weak"

	"github.com/google/uuid"
)

// Kind tells how an identity is shared.
type Kind uint8

const (
	// Static identities belong to a top-level function: one identity, and
	// one cache, shared by every call for the life of the process.
	Static Kind = iota + 1
	// Dynamic identities belong to one closure or callable-object instance.
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// Identity is the registry key of one memoized callable. Implementations are
// comparable and usable as map keys.
type Identity interface {
	Kind() Kind
	// Name is the declared name (static) or construction-pattern name (dynamic).
	Name() string
	String() string
}

// StaticID identifies a top-level function by its declared name and
// signature, never by its implementation: redefining the function under the
// same name and signature yields the same StaticID.
type StaticID struct {
	Symbol    string
	Signature string
}

func (s StaticID) Kind() Kind     { return Static }
func (s StaticID) Name() string   { return s.Symbol }
func (s StaticID) String() string { return s.Symbol + " " + s.Signature }

// dynamicID identifies one Instance. It refers to the instance token weakly,
// so holding it as a map key does not keep the instance alive.
type dynamicID struct {
	ref  weak.Pointer[token]
	id   uuid.UUID
	name string
}

func (d dynamicID) Kind() Kind     { return Dynamic }
func (d dynamicID) Name() string   { return d.name }
func (d dynamicID) String() string { return d.name + "#" + d.id.String() }

// alive reports whether the owning instance is still reachable.
func (d dynamicID) alive() bool { return d.ref.Value() != nil }

// closureName matches the package-local part of runtime symbols of
// closures (outer.func1, outer.func1.2), method values (T.M-fm) and
// range-over-func bodies (outer-range1). A closure always has an enclosing
// name, so a top-level function called func1 does not match.
var closureName = regexp.MustCompile(`^[^.].*(\.func\d+(\.\d+)*|-range\d+(\.\d+)*)$|-fm$`)

// packageLiteral matches func literals created once during package
// initialization (var F = func(...) {...}).
var packageLiteral = regexp.MustCompile(`^(glob\.|init(\.\d+)?)\.func\d+$`)

// isClosureSymbol reports whether a runtime function symbol names a closure
// or method value.
func isClosureSymbol(sym string) bool {
	local := sym
	if i := strings.LastIndexByte(local, '/'); i >= 0 {
		local = local[i+1:]
	}
	if i := strings.IndexByte(local, '.'); i >= 0 {
		local = local[i+1:] // drop the package name
	}
	if packageLiteral.MatchString(local) {
		return false
	}
	return closureName.MatchString(local)
}

// Classify reports whether callable has a static or a dynamic identity.
//
//   - *Handle: the kind of its identity (always Static).
//   - values carrying an Instance (embedded or via the typed wrappers): Dynamic.
//   - func values whose runtime symbol is a closure or method value: Dynamic.
//   - other func values: Static. This includes func literals assigned to
//     package-level variables, which exist once per process, and top-level
//     functions whose name looks like a closure's (func1).
//
// Anything else fails with ErrIdentityResolution.
func Classify(callable any) (Kind, error) {
	switch c := callable.(type) {
	case nil:
		return 0, unresolvable(callable, "nil callable")
	case *Handle:
		if c == nil {
			return 0, unresolvable(callable, "nil handle")
		}
		return c.id.Kind(), nil
	case bound:
		return c.boundTarget().kind(), nil
	case instancer:
		return Dynamic, nil
	}
	v := reflect.ValueOf(callable)
	if v.Kind() != reflect.Func {
		return 0, unresolvable(callable, "not callable")
	}
	if v.IsNil() {
		return 0, unresolvable(callable, "nil func")
	}
	if isClosureSymbol(funcSymbol(v)) {
		return Dynamic, nil
	}
	return Static, nil
}

// DescribeFunc derives the static identity of a top-level function.
// Closures and method values are rejected: their state is per instance and
// must be memoized through an Instance.
func DescribeFunc(fn any) (StaticID, error) {
	kind, err := Classify(fn)
	if err != nil {
		return StaticID{}, err
	}
	v := reflect.ValueOf(fn)
	if kind != Static || v.Kind() != reflect.Func {
		return StaticID{}, unresolvable(fn, "not a top-level function")
	}
	return StaticID{Symbol: funcSymbol(v), Signature: v.Type().String()}, nil
}

func funcSymbol(v reflect.Value) string {
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
