// SPDX-License-Identifier: MPL-2.0

// Package dir serves firmware from an already-extracted system-as-root tree,
// i.e. a directory holding the contents of a system image.
package dir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/android-llm-paper/android-llm-paper/internal/source"
)

// Tree is a source.Backend over a local directory.
type Tree struct {
	root string
}

// Open returns a Tree rooted at root.
func Open(root string) (*Tree, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening tree: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("opening tree: %s is not a directory", root)
	}
	return &Tree{root: root}, nil
}

// Root returns the tree's root directory.
func (t *Tree) Root() string { return t.root }

// Fetch reads the file backing virtualPath.
func (t *Tree) Fetch(_ context.Context, virtualPath string) ([]byte, error) {
	p, err := t.localPath(virtualPath)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &source.NotFoundError{Path: source.Clean(virtualPath)}
	}
	if err != nil {
		if isDirErr(p) {
			return nil, &source.NotFoundError{Path: source.Clean(virtualPath)}
		}
		return nil, err
	}
	return b, nil
}

// List returns the direct children of virtualDir sorted by name.
func (t *Tree) List(_ context.Context, virtualDir string) ([]source.Listing, error) {
	p, err := t.localPath(virtualDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &source.NotFoundError{Path: source.Clean(virtualDir)}
	}
	if err != nil {
		return nil, err
	}
	base := source.Clean(virtualDir)
	out := make([]source.Listing, 0, len(entries))
	for _, e := range entries {
		out = append(out, source.Listing{Path: joinVirtual(base, e.Name()), IsDir: e.IsDir()})
	}
	return out, nil
}

func (t *Tree) localPath(virtualPath string) (string, error) {
	rel, err := source.ImagePath(virtualPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(t.root, filepath.FromSlash(rel)), nil
}

func isDirErr(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

func joinVirtual(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
