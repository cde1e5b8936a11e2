// SPDX-License-Identifier: MPL-2.0

package fwtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

type (
	// File is one container entry. A Name ending in "/" is a directory.
	File struct {
		Name string
		Data []byte
	}

	// Module describes an updatable module package fixture.
	Module struct {
		Name string
		// Files are placed inside the payload image, e.g. "javalib/foo.jar".
		Files map[string][]byte
		// Boot and SystemServer, when non-nil, become etc/classpaths/*.pb in the payload.
		Boot         []string
		SystemServer []string
	}

	// ZipImageExtractor unpacks ZIP "images" produced by this package.
	ZipImageExtractor struct {
		Calls int
	}
)

// Zip builds a ZIP container from files, preserving their order.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.Create(f.Name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", f.Name, err)
		}
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, err := fw.Write(f.Data); err != nil {
			t.Fatalf("writing zip entry %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

// Payload builds the payload image for m.
func (m Module) Payload(t testing.TB) []byte {
	t.Helper()

	var files []File
	for _, name := range slices.Sorted(maps.Keys(m.Files)) {
		files = append(files, File{Name: name, Data: m.Files[name]})
	}
	if m.Boot != nil {
		files = append(files, File{Name: "etc/classpaths/bootclasspath.pb", Data: BootClasspath(m.Boot...)})
	}
	if m.SystemServer != nil {
		files = append(files, File{Name: "etc/classpaths/systemserverclasspath.pb", Data: SystemServerClasspath(m.SystemServer...)})
	}
	return Zip(t, files...)
}

// Package builds a module package holding the manifest and payload directly.
func (m Module) Package(t testing.TB) []byte {
	t.Helper()
	return Zip(t,
		File{Name: "apex_manifest.pb", Data: Manifest(m.Name, 1)},
		File{Name: "apex_payload.img", Data: m.Payload(t)},
	)
}

// Capsule builds a legacy capsule package: the outer container holds the
// manifest and an original_apex entry wrapping the real package. When decoy
// is non-nil it is stored as an outer apex_payload.img that must be ignored.
func (m Module) Capsule(t testing.TB, decoy []byte) []byte {
	t.Helper()
	files := []File{
		{Name: "apex_manifest.pb", Data: Manifest(m.Name, 1)},
		{Name: "original_apex", Data: m.Package(t)},
	}
	if decoy != nil {
		files = append(files, File{Name: "apex_payload.img", Data: decoy})
	}
	return Zip(t, files...)
}

// ExtractImage unzips image into destDir.
func (x *ZipImageExtractor) ExtractImage(_ context.Context, image []byte, destDir string) error {
	x.Calls++

	r, err := zip.NewReader(bytes.NewReader(image), int64(len(image)))
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	for _, f := range r.File {
		dest := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
