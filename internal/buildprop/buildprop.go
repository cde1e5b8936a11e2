// SPDX-License-Identifier: MPL-2.0

// Package buildprop parses Android build.prop files.
package buildprop

import (
	"bufio"
	"bytes"
	"strings"
)

// Property keys describing a build.
const (
	KeyFingerprint   = "ro.system.build.fingerprint"
	KeySecurityPatch = "ro.build.version.security_patch"
	KeyProduct       = "ro.product.system.name"
	KeyBrand         = "ro.product.system.brand"
	KeyRelease       = "ro.build.version.release"
	KeyBuildID       = "ro.build.id"
)

type (
	// Properties is a parsed build.prop. Later assignments win.
	Properties map[string]string

	// Identity is the subset of properties that names a build.
	Identity struct {
		Fingerprint   string
		SecurityPatch string
		Product       string
		Brand         string
		Release       string
		BuildID       string
	}

	// Artifact is one identity text file.
	Artifact struct {
		Name  string
		Key   string
		Value string
	}
)

// Parse reads key=value lines, skipping blanks, comments and import
// directives. Keys and values are trimmed.
func Parse(data []byte) Properties {
	props := make(Properties)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

// Identity extracts the build identity.
func (p Properties) Identity() Identity {
	return Identity{
		Fingerprint:   p[KeyFingerprint],
		SecurityPatch: p[KeySecurityPatch],
		Product:       p[KeyProduct],
		Brand:         p[KeyBrand],
		Release:       p[KeyRelease],
		BuildID:       p[KeyBuildID],
	}
}

// Artifacts lists the identity text files in write order.
func (id Identity) Artifacts() []Artifact {
	return []Artifact{
		{Name: "fingerprint.txt", Key: KeyFingerprint, Value: id.Fingerprint},
		{Name: "security_patch.txt", Key: KeySecurityPatch, Value: id.SecurityPatch},
		{Name: "product.txt", Key: KeyProduct, Value: id.Product},
		{Name: "brand.txt", Key: KeyBrand, Value: id.Brand},
		{Name: "release.txt", Key: KeyRelease, Value: id.Release},
		{Name: "build_id.txt", Key: KeyBuildID, Value: id.BuildID},
	}
}

// Missing returns the keys of empty identity values in artifact order.
func (id Identity) Missing() []string {
	var missing []string
	for _, a := range id.Artifacts() {
		if a.Value == "" {
			missing = append(missing, a.Key)
		}
	}
	return missing
}
