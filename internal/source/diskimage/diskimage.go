// SPDX-License-Identifier: MPL-2.0

// Package diskimage serves firmware from a system-as-root filesystem image
// through the 7z tool.
package diskimage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/android-llm-paper/android-llm-paper/internal/source"
	"github.com/android-llm-paper/android-llm-paper/pkg/archive"
)

const (
	// DefaultCacheEntries is the number of extracted blobs kept in memory.
	DefaultCacheEntries = 64

	// DefaultMaxCachedBlob is the largest blob kept in the cache, in bytes.
	DefaultMaxCachedBlob = 4 << 20
)

type (
	// Tool lists and extracts image entries.
	Tool interface {
		List(ctx context.Context, imagePath string) ([]archive.Entry, error)
		Extract(ctx context.Context, imagePath, entryPath, destDir string) (string, error)
	}

	// Image is a source.Backend over one image file. Listing happens once;
	// extracted blobs are cached.
	Image struct {
		path      string
		tool      Tool
		scratch   string
		cacheSize int
		maxCached int
		logger    *log.Logger
		blobs     *lru.Cache[string, []byte]

		mu      sync.Mutex
		entries []archive.Entry
		files   map[string]bool
	}

	// Option configures an Image.
	Option func(*Image)
)

// WithCacheEntries sets the blob cache size. Values below 1 use the default.
func WithCacheEntries(n int) Option {
	return func(i *Image) {
		i.cacheSize = n
	}
}

// WithMaxCachedBlob sets the largest blob kept in the cache. Values below 1
// use the default.
func WithMaxCachedBlob(n int) Option {
	return func(i *Image) {
		i.maxCached = n
	}
}

// WithScratchDir sets where single entries are extracted before reading.
func WithScratchDir(dir string) Option {
	return func(i *Image) {
		i.scratch = dir
	}
}

// WithLogger sets the image's logger.
func WithLogger(l *log.Logger) Option {
	return func(i *Image) {
		if l != nil {
			i.logger = l
		}
	}
}

// Open returns an Image for the file at path.
func Open(path string, tool Tool, opts ...Option) (*Image, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("opening image: %s is not a regular file", path)
	}
	img := &Image{
		path:      path,
		tool:      tool,
		cacheSize: DefaultCacheEntries,
		maxCached: DefaultMaxCachedBlob,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(img)
	}
	if img.cacheSize < 1 {
		img.cacheSize = DefaultCacheEntries
	}
	if img.maxCached < 1 {
		img.maxCached = DefaultMaxCachedBlob
	}
	img.blobs, err = lru.New[string, []byte](img.cacheSize)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Path returns the image file path.
func (i *Image) Path() string { return i.path }

// Fetch extracts the entry backing virtualPath. Module packages and blobs
// above the size limit are read once and not cached.
func (i *Image) Fetch(ctx context.Context, virtualPath string) ([]byte, error) {
	entry, err := source.ImagePath(virtualPath)
	if err != nil {
		return nil, err
	}
	if b, ok := i.blobs.Get(entry); ok {
		return b, nil
	}
	if err := i.ensureListing(ctx); err != nil {
		return nil, err
	}
	i.mu.Lock()
	present := i.files[entry]
	i.mu.Unlock()
	if !present {
		return nil, &source.NotFoundError{Path: source.Clean(virtualPath)}
	}

	dir, err := os.MkdirTemp(i.scratch, "romextract-entry-*")
	if err != nil {
		return nil, fmt.Errorf("creating extraction dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	i.logger.Debug("extracting image entry", "entry", entry)
	extracted, err := i.tool.Extract(ctx, i.path, entry, dir)
	if errors.Is(err, archive.ErrEntryNotFound) {
		return nil, &source.NotFoundError{Path: source.Clean(virtualPath)}
	}
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", entry, err)
	}
	b, err := os.ReadFile(extracted)
	if err != nil {
		return nil, err
	}
	if i.cacheable(virtualPath, b) {
		i.blobs.Add(entry, b)
	}
	return b, nil
}

func (i *Image) cacheable(virtualPath string, b []byte) bool {
	if len(b) > i.maxCached {
		return false
	}
	return !strings.HasPrefix(source.Clean(virtualPath), source.ModuleDir+"/")
}

// List returns the direct children of virtualDir in image listing order.
func (i *Image) List(ctx context.Context, virtualDir string) ([]source.Listing, error) {
	dir, err := source.ImagePath(virtualDir)
	if err != nil {
		return nil, err
	}
	if err := i.ensureListing(ctx); err != nil {
		return nil, err
	}

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	var out []source.Listing
	found := dir == ""
	for _, e := range i.entries {
		if e.Path == dir && e.IsDir {
			found = true
			continue
		}
		rest, ok := strings.CutPrefix(e.Path, prefix)
		if !ok || rest == "" {
			continue
		}
		found = true
		if strings.Contains(rest, "/") {
			continue
		}
		out = append(out, source.Listing{Path: source.VirtualPath(e.Path), IsDir: e.IsDir})
	}
	if !found {
		return nil, &source.NotFoundError{Path: source.Clean(virtualDir)}
	}
	return out, nil
}

func (i *Image) ensureListing(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.files != nil {
		return nil
	}
	entries, err := i.tool.List(ctx, i.path)
	if err != nil {
		return fmt.Errorf("listing image: %w", err)
	}
	files := make(map[string]bool, len(entries))
	for idx, e := range entries {
		e.Path = strings.Trim(e.Path, "/")
		entries[idx] = e
		if !e.IsDir {
			files[e.Path] = true
		}
	}
	i.entries = entries
	i.files = files
	i.logger.Debug("image listed", "entries", len(entries))
	return nil
}
