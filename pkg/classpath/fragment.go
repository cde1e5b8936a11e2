// SPDX-License-Identifier: MPL-2.0

package classpath

import "strings"

type (
	// Origin identifies who declared a fragment: the base partition or a module.
	Origin struct {
		module string
	}

	// Fragment is an ordered, immutable sequence of entries decoded from one
	// descriptor blob.
	Fragment struct {
		origin  Origin
		kind    Kind
		entries []Entry
	}

	// Merged is the final classpath of one kind.
	Merged struct {
		Kind    Kind
		Entries []Entry
	}
)

// BaseOrigin is the origin of base partition fragments.
func BaseOrigin() Origin { return Origin{} }

// ModuleOrigin is the origin of fragments declared by the named module.
func ModuleOrigin(name string) Origin { return Origin{module: name} }

// Module returns the declaring module, or false for the base partition.
func (o Origin) Module() (string, bool) { return o.module, o.module != "" }

// String returns "base" or the module name.
func (o Origin) String() string {
	if o.module == "" {
		return "base"
	}
	return o.module
}

// NewFragment builds a fragment from paths in declaration order.
func NewFragment(origin Origin, kind Kind, paths []string) Fragment {
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, Entry{Path: p, Kind: kind})
	}
	return Fragment{origin: origin, kind: kind, entries: entries}
}

// EmptyFragment is the contribution of a declarer without a descriptor.
func EmptyFragment(origin Origin, kind Kind) Fragment {
	return Fragment{origin: origin, kind: kind}
}

// Origin returns who declared the fragment.
func (f Fragment) Origin() Origin { return f.origin }

// Kind returns the fragment's classpath kind.
func (f Fragment) Kind() Kind { return f.kind }

// Len returns the number of entries.
func (f Fragment) Len() int { return len(f.entries) }

// Entries returns a copy of the entries in order.
func (f Fragment) Entries() []Entry {
	return append([]Entry(nil), f.entries...)
}

// Paths returns the entry paths in order.
func (f Fragment) Paths() []string {
	return entryPaths(f.entries)
}

// Paths returns the entry paths in order.
func (m Merged) Paths() []string {
	return entryPaths(m.Entries)
}

// String serializes the classpath as a ListSeparator-joined list.
func (m Merged) String() string {
	return strings.Join(m.Paths(), ListSeparator)
}

func entryPaths(entries []Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths
}
