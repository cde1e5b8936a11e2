// SPDX-License-Identifier: MPL-2.0

// Package source defines how firmware bytes are fetched by virtual path.
//
// Virtual paths follow the layout of a partition dump: a leading partition
// directory followed by the partition's contents. The system partition is
// mounted system-as-root, so the device path /system/framework/x.jar is the
// virtual path /system/system/framework/x.jar, while /system_ext/... maps to
// itself.
package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Partition directories of the virtual layout.
const (
	SystemPartition    = "/system"
	ExtensionPartition = "/system_ext"
)

// Well-known virtual paths.
const (
	BuildPropPath       = "/system/system/build.prop"
	ModuleDir           = "/system/system/apex"
	BaseClasspathDir    = "/system/system/etc/classpaths"
	SystemSELinuxDir    = "/system/system/etc/selinux"
	ExtensionSELinuxDir = "/system_ext/etc/selinux"
)

// ErrNotFound is returned when nothing is stored at a virtual path.
var ErrNotFound = errors.New("not found")

type (
	// Source fetches the bytes stored at a virtual path.
	Source interface {
		Fetch(ctx context.Context, virtualPath string) ([]byte, error)
	}

	// Lister enumerates a virtual directory.
	Lister interface {
		List(ctx context.Context, virtualDir string) ([]Listing, error)
	}

	// Backend is a complete firmware source.
	Backend interface {
		Source
		Lister
	}

	// Listing is one directory entry. Order is the backend's listing order.
	Listing struct {
		// Path is the entry's absolute virtual path.
		Path  string
		IsDir bool
	}

	// NotFoundError records the virtual path that was missing.
	NotFoundError struct {
		Path string
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Path)
}

// Unwrap returns ErrNotFound for errors.Is checks.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Name returns the last element of the listing path.
func (l Listing) Name() string { return path.Base(l.Path) }

// Clean normalizes a virtual path to an absolute, slash-separated path.
func Clean(virtualPath string) string {
	return path.Clean("/" + virtualPath)
}

// ImagePath maps a virtual path onto the entry path inside a system-as-root
// image: /system/<rest> becomes <rest> and /system_ext/<rest> becomes
// system/system_ext/<rest>. Other partitions are not part of such an image.
func ImagePath(virtualPath string) (string, error) {
	p := Clean(virtualPath)
	if rest, ok := strings.CutPrefix(p, ExtensionPartition+"/"); ok {
		return "system/system_ext/" + rest, nil
	}
	if p == ExtensionPartition {
		return "system/system_ext", nil
	}
	if rest, ok := strings.CutPrefix(p, SystemPartition+"/"); ok {
		return rest, nil
	}
	if p == SystemPartition {
		return "", nil
	}
	return "", &NotFoundError{Path: p}
}

// VirtualPath is the inverse of ImagePath.
func VirtualPath(imagePath string) string {
	p := strings.Trim(imagePath, "/")
	if rest, ok := strings.CutPrefix(p, "system/system_ext"); ok && (rest == "" || rest[0] == '/') {
		return ExtensionPartition + rest
	}
	if p == "" {
		return SystemPartition
	}
	return SystemPartition + "/" + p
}
