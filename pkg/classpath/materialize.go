// SPDX-License-Identifier: MPL-2.0

package classpath

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrUnsafeEntry is returned for entry paths that would escape a tree root.
var ErrUnsafeEntry = errors.New("unsafe classpath entry")

type (
	// Fetcher returns the bytes stored at a virtual path.
	Fetcher interface {
		Fetch(ctx context.Context, virtualPath string) ([]byte, error)
	}

	// Materializer copies the archives of a merged classpath into a local tree.
	Materializer struct {
		source  Fetcher
		modules map[string]string
		logger  *log.Logger
	}

	// Stats summarizes one materialization.
	Stats struct {
		Kind         Kind
		Listed       int
		Materialized int
		// Missing holds the entry paths that could not be sourced, in order.
		Missing []string
	}
)

// NewMaterializer returns a materializer that sources partition-scoped entries
// from source and module-scoped entries from the given module name to unpack
// directory map. A nil logger discards output.
func NewMaterializer(source Fetcher, modules map[string]string, logger *log.Logger) *Materializer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Materializer{source: source, modules: modules, logger: logger}
}

// Materialize writes every entry of m under root, mirroring the entry's
// virtual path. An entry that cannot be sourced is logged and skipped; the
// remaining entries are still processed. Each file is written to a temporary
// name and renamed into place, so a rerun replaces complete files with
// complete files.
//
// Only context cancellation and failure to create root abort the call.
func (mt *Materializer) Materialize(ctx context.Context, m Merged, root string) (Stats, error) {
	stats := Stats{Kind: m.Kind, Listed: len(m.Entries)}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return stats, fmt.Errorf("create %s tree: %w", m.Kind, err)
	}
	for _, e := range m.Entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := mt.materializeEntry(ctx, e, root); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			mt.logger.Warn("classpath entry skipped", "kind", m.Kind, "path", e.Path, "err", err)
			stats.Missing = append(stats.Missing, e.Path)
			continue
		}
		stats.Materialized++
	}
	return stats, nil
}

func (mt *Materializer) materializeEntry(ctx context.Context, e Entry, root string) error {
	dest, err := TreePath(root, e.Path)
	if err != nil {
		return err
	}
	data, err := mt.read(ctx, e)
	if err != nil {
		return err
	}
	return WriteFileAtomic(dest, data)
}

func (mt *Materializer) read(ctx context.Context, e Entry) ([]byte, error) {
	name, scoped := e.Module()
	if !scoped {
		return mt.source.Fetch(ctx, e.SourcePath())
	}
	dir, ok := mt.modules[name]
	if !ok {
		return nil, fmt.Errorf("module %s was not unpacked", name)
	}
	rel := e.ModuleRelative()
	if rel == "" {
		return nil, fmt.Errorf("%w: %s has no path inside module %s", ErrUnsafeEntry, e.Path, name)
	}
	src, err := TreePath(dir, rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(src)
}

// TreePath joins a virtual path beneath root, rejecting paths that resolve
// outside it.
func TreePath(root, virtualPath string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(virtualPath, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeEntry, virtualPath)
	}
	return filepath.Join(root, rel), nil
}

// WriteList writes the merged classpath as a single ListSeparator-joined line.
func WriteList(m Merged, path string) error {
	return WriteFileAtomic(path, []byte(m.String()))
}

// WriteFileAtomic writes data to a temporary file beside path and renames it
// into place, creating parent directories as needed.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
