// SPDX-License-Identifier: MPL-2.0

package classpath

import (
	"fmt"
	"path"
	"strings"
)

const (
	// ModulePrefix is the reserved leading segment of module-scoped entries.
	ModulePrefix = "/apex/"

	// RuntimeModule is the module whose contribution loads before everything else.
	RuntimeModule = "com.android.art"

	// ExtensionPartitionPrefix marks entries that live on the system_ext
	// partition. They are requested from a source unchanged.
	ExtensionPartitionPrefix = "/system_ext/"

	// SystemPartitionRoot is prepended to every other partition-scoped entry.
	// The system partition is mounted system-as-root, so its contents sit one
	// level below the partition directory of a dump (/system/system/...).
	SystemPartitionRoot = "/system"

	// ListSeparator joins serialized classpath lists.
	ListSeparator = ":"
)

const (
	// KindBoot is the boot classpath loaded into every process.
	KindBoot Kind = iota
	// KindSystemServer is the classpath of the system server process.
	KindSystemServer
)

type (
	// Kind distinguishes the two classpaths.
	Kind int

	// Entry is an absolute virtual path to one archive on a classpath.
	Entry struct {
		Path string
		Kind Kind
	}
)

// Kinds lists every classpath kind in output order.
func Kinds() []Kind {
	return []Kind{KindBoot, KindSystemServer}
}

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindBoot:
		return "boot"
	case KindSystemServer:
		return "systemserver"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DescriptorName is the file name of the kind's descriptor under etc/classpaths/.
func (k Kind) DescriptorName() string {
	switch k {
	case KindBoot:
		return "bootclasspath.pb"
	case KindSystemServer:
		return "systemserverclasspath.pb"
	default:
		return ""
	}
}

// ListName is the file name of the kind's serialized path list.
func (k Kind) ListName() string {
	switch k {
	case KindBoot:
		return "bootclasspath.txt"
	case KindSystemServer:
		return "systemserverclasspath.txt"
	default:
		return ""
	}
}

// TreeName is the directory name of the kind's materialized tree.
func (k Kind) TreeName() string {
	switch k {
	case KindBoot:
		return "bootcp"
	case KindSystemServer:
		return "systemservercp"
	default:
		return ""
	}
}

// Module returns the owning module's canonical name for a module-scoped
// entry, and false for partition-scoped entries.
func (e Entry) Module() (string, bool) {
	rest, ok := strings.CutPrefix(e.Path, ModulePrefix)
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		return "", false
	}
	return name, true
}

// ModuleRelative returns the entry path inside its owning module with the
// reserved prefix and module segment stripped, or "" for partition-scoped entries.
func (e Entry) ModuleRelative() string {
	rest, ok := strings.CutPrefix(e.Path, ModulePrefix)
	if !ok {
		return ""
	}
	_, rel, _ := strings.Cut(rest, "/")
	return rel
}

// SourcePath maps a partition-scoped entry to the virtual path requested from
// a blob source: system_ext entries unchanged, everything else beneath
// SystemPartitionRoot.
func (e Entry) SourcePath() string {
	p := path.Clean("/" + e.Path)
	if strings.HasPrefix(p, ExtensionPartitionPrefix) {
		return p
	}
	return SystemPartitionRoot + p
}
