// SPDX-License-Identifier: MPL-2.0

package classpath

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
)

// DescriptorDir is where a module payload keeps its classpath descriptors.
const DescriptorDir = "etc/classpaths"

const (
	// RoleOther marks a module merged after the base partition.
	RoleOther Role = iota
	// RoleRuntime marks the runtime module, merged first.
	RoleRuntime
)

var (
	// ErrMissingRuntimeModule is returned by Finalize when no runtime module
	// contribution was ingested. The run produces no classpath output.
	ErrMissingRuntimeModule = errors.New("runtime module " + RuntimeModule + " not found")

	// ErrDuplicateModule rejects a module whose name was already ingested.
	ErrDuplicateModule = errors.New("duplicate module")

	// ErrDuplicateRuntimeModule rejects a second module claiming the runtime
	// name. It matches ErrDuplicateModule as well.
	ErrDuplicateRuntimeModule = fmt.Errorf("%w: runtime", ErrDuplicateModule)

	// ErrBaseAlreadyIngested is returned when base fragments are ingested twice.
	ErrBaseAlreadyIngested = errors.New("base partition fragments already ingested")

	// ErrInvalidModule is returned for a module without a name or directory.
	ErrInvalidModule = errors.New("invalid module")
)

type (
	// Role is how an ingested module takes part in the merge.
	Role int

	// Decoder turns a classpath descriptor blob into ordered entry paths.
	Decoder interface {
		DecodeClasspath(b []byte) ([]string, error)
	}

	// Module is an unpacked updatable module ready for ingestion.
	Module struct {
		// Name is the canonical name from the module's manifest.
		Name string
		// Dir is the local directory the module payload was unpacked into.
		Dir string
	}

	// contribution holds one declarer's fragments, indexed by Kind.
	contribution [2]Fragment

	// optional holds a value that may be absent.
	optional[T any] struct {
		value T
		ok    bool
	}

	// Assembly accumulates fragments from the base partition and from modules
	// and merges them. It is not safe for concurrent use.
	Assembly struct {
		decoder Decoder

		base     contribution
		haveBase bool

		// runtime is set at most once; Finalize requires it.
		runtime optional[contribution]

		others []contribution

		// dirs maps ingested module names to unpack directories for
		// module-scoped entry resolution. Failed modules are never recorded.
		dirs map[string]string
	}
)

// String returns the role's name.
func (r Role) String() string {
	if r == RoleRuntime {
		return "runtime"
	}
	return "other"
}

// NewAssembly returns an empty assembly that decodes descriptors with d.
func NewAssembly(d Decoder) *Assembly {
	return &Assembly{
		decoder: d,
		dirs:    make(map[string]string),
	}
}

// IngestBase decodes the base partition's descriptors. A nil blob means the
// descriptor is absent and contributes an empty fragment. Each kind is
// decoded on its own: a blob that fails to decode contributes an empty
// fragment for its kind only, and the decode errors are returned joined.
func (a *Assembly) IngestBase(boot, systemServer []byte) error {
	if a.haveBase {
		return ErrBaseAlreadyIngested
	}
	var (
		c    contribution
		errs []error
	)
	for _, k := range Kinds() {
		blob := boot
		if k == KindSystemServer {
			blob = systemServer
		}
		f, err := a.decode(BaseOrigin(), k, blob)
		if err != nil {
			errs = append(errs, fmt.Errorf("base partition %s classpath: %w", k, err))
			f = EmptyFragment(BaseOrigin(), k)
		}
		c[k] = f
	}
	a.base = c
	a.haveBase = true
	return errors.Join(errs...)
}

// Admit checks whether a module with the given canonical name may be
// unpacked. A name already ingested is rejected before any unpack work so the
// earlier module's directory stays intact. Packages that failed never claim
// their name.
func (a *Assembly) Admit(name string) error {
	if _, ok := a.dirs[name]; !ok {
		return nil
	}
	if name == RuntimeModule {
		return fmt.Errorf("%w: %s", ErrDuplicateRuntimeModule, name)
	}
	return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
}

// IngestModule reads the module's descriptors from Dir/etc/classpaths and
// records its contribution. Absent descriptors contribute empty fragments.
// A module that fails to decode leaves the assembly untouched.
func (a *Assembly) IngestModule(m Module) (Role, error) {
	if m.Name == "" || m.Dir == "" {
		return RoleOther, fmt.Errorf("%w: name %q dir %q", ErrInvalidModule, m.Name, m.Dir)
	}
	role := RoleOther
	if m.Name == RuntimeModule {
		role = RoleRuntime
	}
	if err := a.Admit(m.Name); err != nil {
		return role, err
	}

	var c contribution
	for _, k := range Kinds() {
		blob, err := readDescriptor(m.Dir, k)
		if err != nil {
			return role, fmt.Errorf("module %s: %w", m.Name, err)
		}
		f, err := a.decode(ModuleOrigin(m.Name), k, blob)
		if err != nil {
			return role, fmt.Errorf("module %s %s classpath: %w", m.Name, k, err)
		}
		c[k] = f
	}

	a.dirs[m.Name] = m.Dir
	if role == RoleRuntime {
		a.runtime = some(c)
	} else {
		a.others = append(a.others, c)
	}
	return role, nil
}

// ModuleDir returns the unpack directory registered for a module name.
func (a *Assembly) ModuleDir(name string) (string, bool) {
	dir, ok := a.dirs[name]
	return dir, ok
}

// ModuleDirs returns a copy of the module name to unpack directory registry.
func (a *Assembly) ModuleDirs() map[string]string {
	return maps.Clone(a.dirs)
}

// HasRuntime reports whether the runtime module has been ingested.
func (a *Assembly) HasRuntime() bool { return a.runtime.ok }

// Finalize merges the collected fragments per kind as runtime ++ base ++
// others. It fails with ErrMissingRuntimeModule when no runtime module was
// ingested. The assembly is not modified.
func (a *Assembly) Finalize() (map[Kind]Merged, error) {
	runtime, ok := a.runtime.get()
	if !ok {
		return nil, ErrMissingRuntimeModule
	}
	out := make(map[Kind]Merged, len(Kinds()))
	for _, k := range Kinds() {
		n := runtime[k].Len() + a.base[k].Len()
		for _, c := range a.others {
			n += c[k].Len()
		}
		entries := make([]Entry, 0, n)
		entries = append(entries, runtime[k].entries...)
		entries = append(entries, a.base[k].entries...)
		for _, c := range a.others {
			entries = append(entries, c[k].entries...)
		}
		out[k] = Merged{Kind: k, Entries: entries}
	}
	return out, nil
}

func some[T any](v T) optional[T] { return optional[T]{value: v, ok: true} }

func (o optional[T]) get() (T, bool) { return o.value, o.ok }

func (a *Assembly) decode(origin Origin, k Kind, blob []byte) (Fragment, error) {
	if blob == nil {
		return EmptyFragment(origin, k), nil
	}
	paths, err := a.decoder.DecodeClasspath(blob)
	if err != nil {
		return Fragment{}, err
	}
	return NewFragment(origin, k, paths), nil
}

// readDescriptor returns nil without error when the descriptor is absent.
func readDescriptor(dir string, k Kind) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(DescriptorDir), k.DescriptorName()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = []byte{}
	}
	return b, nil
}
