package cache

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Equality selects when two argument keys denote the same call.
type Equality uint8

const (
	// IdentityEquality compares plain values (numbers, strings, structs of
	// them) by value and reference-like values (pointers, slices, maps,
	// channels, funcs) by address: two distinct slices with equal elements
	// are different keys. This is the default. Caches keep the arguments of
	// every stored entry reachable, so an address in a live entry is never
	// handed to a new object. Zero-size values (empty zero-capacity slices,
	// pointers to empty structs) may share one address in Go and are then
	// the same key.
	IdentityEquality Equality = iota
	// ValueEquality compares by deep content. fmt.Stringer arguments are
	// compared by their String() form.
	ValueEquality
)

func (e Equality) String() string {
	switch e {
	case IdentityEquality:
		return "identity"
	case ValueEquality:
		return "value"
	default:
		return "equality(" + strconv.Itoa(int(e)) + ")"
	}
}

// ErrUnhashable is returned by value fingerprints of arguments that have no
// content to compare (funcs and channels).
var ErrUnhashable = errors.New("cache: argument has no comparable content")

// Fingerprint renders k canonically under eq: two keys are equal under eq
// exactly when their fingerprints are equal. Keyword order is irrelevant and
// the dynamic type of every argument is part of the fingerprint, so int(1)
// and int64(1) differ.
func Fingerprint(eq Equality, k Key) (string, error) {
	f := &fingerprinter{eq: eq}
	f.b.WriteByte('(')
	for i, a := range k.Args {
		if i > 0 {
			f.b.WriteByte(',')
		}
		if err := f.arg(a); err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
	}
	f.b.WriteByte(')')

	if kw := k.sortedKwargs(); len(kw) > 0 {
		f.b.WriteByte('{')
		for i, e := range kw {
			if i > 0 {
				f.b.WriteByte(',')
			}
			f.b.WriteString(strconv.Quote(e.Name))
			f.b.WriteByte('=')
			if err := f.arg(e.Value); err != nil {
				return "", fmt.Errorf("keyword %q: %w", e.Name, err)
			}
		}
		f.b.WriteByte('}')
	}
	return f.b.String(), nil
}

type fingerprinter struct {
	eq   Equality
	b    strings.Builder
	seen map[uintptr]bool // pointers on the current value path
}

func (f *fingerprinter) arg(a any) error {
	if a == nil {
		f.b.WriteString("nil")
		return nil
	}
	v := reflect.ValueOf(a)
	f.typ(v.Type())
	if f.eq == ValueEquality && !(v.Kind() == reflect.Pointer && v.IsNil()) {
		if s, ok := a.(fmt.Stringer); ok {
			f.b.WriteByte('s')
			f.b.WriteString(strconv.Quote(s.String()))
			return nil
		}
	}
	return f.value(v)
}

func (f *fingerprinter) typ(t reflect.Type) {
	name := t.String()
	if t.Name() != "" && t.PkgPath() != "" {
		name = t.PkgPath() + "." + t.Name()
	}
	f.b.WriteString(strconv.Quote(name))
}

func (f *fingerprinter) addr(p uintptr) {
	f.b.WriteString("@0x")
	f.b.WriteString(strconv.FormatUint(uint64(p), 16))
}

func (f *fingerprinter) value(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Invalid:
		f.b.WriteString("nil")
	case reflect.Bool:
		f.b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		f.b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32:
		f.b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 32))
	case reflect.Float64:
		f.b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.Complex64:
		f.b.WriteString(strconv.FormatComplex(v.Complex(), 'g', -1, 64))
	case reflect.Complex128:
		f.b.WriteString(strconv.FormatComplex(v.Complex(), 'g', -1, 128))
	case reflect.String:
		f.b.WriteString(strconv.Quote(v.String()))
	case reflect.Interface:
		if v.IsNil() {
			f.b.WriteString("nil")
			return nil
		}
		f.typ(v.Elem().Type())
		return f.value(v.Elem())
	case reflect.Array:
		return f.sequence(v)
	case reflect.Struct:
		f.b.WriteByte('{')
		for i := 0; i < v.NumField(); i++ {
			if i > 0 {
				f.b.WriteByte(',')
			}
			if err := f.value(v.Field(i)); err != nil {
				return err
			}
		}
		f.b.WriteByte('}')
	case reflect.Pointer:
		if f.eq == IdentityEquality || v.IsNil() {
			f.addr(v.Pointer())
			return nil
		}
		return f.pointee(v)
	case reflect.Slice:
		if f.eq == IdentityEquality {
			f.addr(v.Pointer())
			fmt.Fprintf(&f.b, "/%d/%d", v.Len(), v.Cap())
			return nil
		}
		if v.IsNil() {
			f.b.WriteString("nil")
			return nil
		}
		return f.sequence(v)
	case reflect.Map:
		if f.eq == IdentityEquality || v.IsNil() {
			f.addr(v.Pointer())
			return nil
		}
		return f.mapping(v)
	case reflect.Chan, reflect.Func:
		if f.eq == IdentityEquality {
			f.addr(v.Pointer())
			return nil
		}
		return fmt.Errorf("%w: %s", ErrUnhashable, v.Type())
	case reflect.UnsafePointer:
		f.addr(v.Pointer())
	default:
		return fmt.Errorf("%w: %s", ErrUnhashable, v.Type())
	}
	return nil
}

func (f *fingerprinter) sequence(v reflect.Value) error {
	f.b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			f.b.WriteByte(',')
		}
		if err := f.value(v.Index(i)); err != nil {
			return err
		}
	}
	f.b.WriteByte(']')
	return nil
}

// pointee renders the pointed-to content; a pointer already on the current
// path renders as a back-reference instead of recursing forever.
func (f *fingerprinter) pointee(v reflect.Value) error {
	p := v.Pointer()
	if f.seen[p] {
		f.b.WriteString("<cycle>")
		return nil
	}
	if f.seen == nil {
		f.seen = make(map[uintptr]bool)
	}
	f.seen[p] = true
	defer delete(f.seen, p)

	f.b.WriteByte('*')
	return f.value(v.Elem())
}

// mapping renders entries sorted by their rendered key.
func (f *fingerprinter) mapping(v reflect.Value) error {
	type entry struct{ k, v string }
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := f.render(iter.Key())
		if err != nil {
			return err
		}
		val, err := f.render(iter.Value())
		if err != nil {
			return err
		}
		entries = append(entries, entry{k, val})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].k < entries[j].k })

	f.b.WriteString("map[")
	for i, e := range entries {
		if i > 0 {
			f.b.WriteByte(',')
		}
		f.b.WriteString(e.k)
		f.b.WriteByte(':')
		f.b.WriteString(e.v)
	}
	f.b.WriteByte(']')
	return nil
}

func (f *fingerprinter) render(v reflect.Value) (string, error) {
	sub := &fingerprinter{eq: f.eq, seen: f.seen}
	if err := sub.value(v); err != nil {
		return "", err
	}
	return sub.b.String(), nil
}
