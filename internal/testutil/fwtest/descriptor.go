// SPDX-License-Identifier: MPL-2.0

package fwtest

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Classpath encodes an ExportedClasspathsJars message holding one jar per path.
// Every jar is tagged with the given classpath enum value.
func Classpath(classpath int32, paths ...string) []byte {
	var out []byte
	for _, p := range paths {
		var jar []byte
		jar = protowire.AppendTag(jar, 1, protowire.BytesType)
		jar = protowire.AppendString(jar, p)
		jar = protowire.AppendTag(jar, 2, protowire.VarintType)
		jar = protowire.AppendVarint(jar, uint64(classpath))

		out = protowire.AppendTag(out, 1, protowire.BytesType)
		out = protowire.AppendBytes(out, jar)
	}
	return out
}

// BootClasspath encodes a BOOTCLASSPATH fragment.
func BootClasspath(paths ...string) []byte { return Classpath(1, paths...) }

// SystemServerClasspath encodes a SYSTEMSERVERCLASSPATH fragment.
func SystemServerClasspath(paths ...string) []byte { return Classpath(3, paths...) }

// Manifest encodes an ApexManifest with the given name and version.
func Manifest(name string, version int64) []byte {
	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendString(out, name)
	out = protowire.AppendTag(out, 2, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(version))
	return out
}
