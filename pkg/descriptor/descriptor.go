// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of ExportedClasspathsJars and Jar (packages/modules/common/proto/classpaths.proto).
const (
	fieldJars = 1

	fieldJarPath          = 1
	fieldJarClasspath     = 2
	fieldJarMinSdkVersion = 3
	fieldJarMaxSdkVersion = 4
)

// Field numbers of ApexManifest (system/apex/proto/apex_manifest.proto).
const (
	fieldManifestName        = 1
	fieldManifestVersion     = 2
	fieldManifestVersionName = 6
)

const (
	// ClasspathUnknown is the zero value of the Classpath enum.
	ClasspathUnknown Classpath = 0
	// ClasspathBoot marks a jar on BOOTCLASSPATH.
	ClasspathBoot Classpath = 1
	// ClasspathDex2OatBoot marks a jar on DEX2OATBOOTCLASSPATH.
	ClasspathDex2OatBoot Classpath = 2
	// ClasspathSystemServer marks a jar on SYSTEMSERVERCLASSPATH.
	ClasspathSystemServer Classpath = 3
	// ClasspathStandaloneSystemServer marks a standalone system server jar.
	ClasspathStandaloneSystemServer Classpath = 4
)

// ErrMalformed is returned when a descriptor blob is not valid wire data or
// lacks a required field.
var ErrMalformed = errors.New("malformed descriptor")

type (
	// Classpath is the classpath a jar is declared on.
	Classpath int32

	// Jar is one entry of an exported classpath fragment.
	Jar struct {
		Path          string
		Classpath     Classpath
		MinSdkVersion string
		MaxSdkVersion string
	}

	// Manifest is the decoded updatable module manifest.
	Manifest struct {
		// Name is the canonical module name, e.g. "com.android.art".
		Name        string
		Version     int64
		VersionName string
	}

	// Codec decodes classpath descriptors and module manifests.
	Codec interface {
		DecodeClasspath(b []byte) ([]string, error)
		DecodeManifest(b []byte) (Manifest, error)
	}

	// ProtoCodec is the protobuf wire-format Codec.
	ProtoCodec struct{}

	// MalformedError describes where decoding stopped.
	MalformedError struct {
		What   string
		Reason string
	}
)

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.What, e.Reason)
}

// Unwrap returns ErrMalformed so callers can use errors.Is.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// String returns the proto enum name of the classpath.
func (c Classpath) String() string {
	switch c {
	case ClasspathUnknown:
		return "UNKNOWN"
	case ClasspathBoot:
		return "BOOTCLASSPATH"
	case ClasspathDex2OatBoot:
		return "DEX2OATBOOTCLASSPATH"
	case ClasspathSystemServer:
		return "SYSTEMSERVERCLASSPATH"
	case ClasspathStandaloneSystemServer:
		return "STANDALONE_SYSTEMSERVER_JARS"
	default:
		return fmt.Sprintf("Classpath(%d)", int32(c))
	}
}

// NewCodec returns the default Codec.
func NewCodec() Codec {
	return ProtoCodec{}
}

// DecodeClasspath returns the jar paths of a classpath fragment in declaration order.
func (ProtoCodec) DecodeClasspath(b []byte) ([]string, error) {
	jars, err := DecodeJars(b)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(jars))
	for _, jar := range jars {
		paths = append(paths, jar.Path)
	}
	return paths, nil
}

// DecodeManifest decodes an apex_manifest.pb blob.
func (ProtoCodec) DecodeManifest(b []byte) (Manifest, error) {
	var m Manifest
	err := walkFields(b, "manifest", func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldManifestName && typ == protowire.BytesType:
			m.Name = string(v)
		case num == fieldManifestVersion && typ == protowire.VarintType:
			m.Version = int64(n)
		case num == fieldManifestVersionName && typ == protowire.BytesType:
			m.VersionName = string(v)
		}
		return nil
	})
	if err != nil {
		return Manifest{}, err
	}
	if m.Name == "" {
		return Manifest{}, &MalformedError{What: "manifest", Reason: "missing module name"}
	}
	return m, nil
}

// DecodeJars decodes an ExportedClasspathsJars blob into its Jar records,
// preserving wire order. An empty blob is a valid, empty fragment.
func DecodeJars(b []byte) ([]Jar, error) {
	var jars []Jar
	err := walkFields(b, "classpath", func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != fieldJars || typ != protowire.BytesType {
			return nil
		}
		jar, err := decodeJar(v)
		if err != nil {
			return err
		}
		jars = append(jars, jar)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jars, nil
}

func decodeJar(b []byte) (Jar, error) {
	var jar Jar
	err := walkFields(b, "classpath jar", func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldJarPath && typ == protowire.BytesType:
			jar.Path = string(v)
		case num == fieldJarClasspath && typ == protowire.VarintType:
			jar.Classpath = Classpath(int32(n))
		case num == fieldJarMinSdkVersion && typ == protowire.BytesType:
			jar.MinSdkVersion = string(v)
		case num == fieldJarMaxSdkVersion && typ == protowire.BytesType:
			jar.MaxSdkVersion = string(v)
		}
		return nil
	})
	if err != nil {
		return Jar{}, err
	}
	if jar.Path == "" {
		return Jar{}, &MalformedError{What: "classpath jar", Reason: "missing path"}
	}
	return jar, nil
}

// walkFields calls fn for every top-level field of a message. For bytes fields
// v holds the payload; for varint fields n holds the value. Fixed-width and
// group fields are skipped.
func walkFields(b []byte, what string, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return &MalformedError{What: what, Reason: protowire.ParseError(tagLen).Error()}
		}
		b = b[tagLen:]

		var (
			v   []byte
			n   uint64
			adv int
		)
		switch typ {
		case protowire.BytesType:
			v, adv = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			n, adv = protowire.ConsumeVarint(b)
		default:
			adv = protowire.ConsumeFieldValue(num, typ, b)
		}
		if adv < 0 {
			return &MalformedError{What: what, Reason: fmt.Sprintf("field %d: %v", num, protowire.ParseError(adv))}
		}
		b = b[adv:]

		if typ != protowire.BytesType && typ != protowire.VarintType {
			continue
		}
		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}
