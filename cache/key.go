package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key is the argument key of one memoized call: the positional arguments in
// order plus the keyword arguments. Variadic tails are expanded into Args by
// whoever builds the key; the cache never looks inside.
type Key struct {
	Args   []any
	Kwargs []Kwarg
}

// Kwarg is one keyword argument.
type Kwarg struct {
	Name  string
	Value any
}

// Args builds a key from positional arguments.
func Args(vs ...any) Key { return Key{Args: vs} }

// With returns a copy of k with the keyword argument name set to v,
// replacing an earlier value for the same name. k itself is not modified.
func (k Key) With(name string, v any) Key {
	kw := make([]Kwarg, 0, len(k.Kwargs)+1)
	for _, e := range k.Kwargs {
		if e.Name != name {
			kw = append(kw, e)
		}
	}
	kw = append(kw, Kwarg{Name: name, Value: v})
	return Key{Args: k.Args, Kwargs: kw}
}

// sortedKwargs returns the keyword arguments ordered by name.
func (k Key) sortedKwargs() []Kwarg {
	if len(k.Kwargs) < 2 {
		return k.Kwargs
	}
	kw := append([]Kwarg(nil), k.Kwargs...)
	sort.Slice(kw, func(i, j int) bool { return kw[i].Name < kw[j].Name })
	return kw
}

// String renders the key for logs, e.g. "(1, "a"; depth=2)".
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, a := range k.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%#v", a)
	}
	for i, e := range k.sortedKwargs() {
		if i == 0 {
			b.WriteString("; ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%#v", e.Name, e.Value)
	}
	b.WriteByte(')')
	return b.String()
}
