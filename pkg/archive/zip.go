// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultMaxEntryBytes bounds a single extracted entry (4 GiB).
const DefaultMaxEntryBytes = 4 << 30

var (
	// ErrEntryNotFound is returned when a container has no entry with the requested path.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidContainer is returned when bytes cannot be opened as a container.
	ErrInvalidContainer = errors.New("invalid container")
	// ErrUnsafePath is returned when an entry path would escape the destination directory.
	ErrUnsafePath = errors.New("unsafe entry path")
	// ErrEntryTooLarge is returned when an entry decompresses past the size limit.
	ErrEntryTooLarge = errors.New("entry exceeds size limit")
)

type (
	// Entry is one item of a container listing.
	Entry struct {
		Path  string
		IsDir bool
	}

	// ImageExtractor fully decompresses a filesystem image into a directory.
	ImageExtractor interface {
		ExtractImage(ctx context.Context, image []byte, destDir string) error
	}

	// Extractor is the full archive contract used by the module resolver.
	Extractor interface {
		ImageExtractor
		List(container []byte) ([]Entry, error)
		ReadEntry(container []byte, entryPath string) ([]byte, error)
		ExtractEntry(container []byte, entryPath, destDir string) (string, error)
	}

	// ZipExtractor handles ZIP containers in memory and delegates images to Images.
	ZipExtractor struct {
		Images ImageExtractor
		// MaxEntryBytes bounds one decompressed entry; 0 means DefaultMaxEntryBytes.
		MaxEntryBytes int64
	}
)

// NewExtractor returns a ZipExtractor that decompresses payload images with
// images, usually a *SevenZip.
func NewExtractor(images ImageExtractor) *ZipExtractor {
	return &ZipExtractor{Images: images}
}

// List returns the container entries in their stored order.
func (z *ZipExtractor) List(container []byte) ([]Entry, error) {
	r, err := openZip(container)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, Entry{
			Path:  strings.TrimSuffix(f.Name, "/"),
			IsDir: f.FileInfo().IsDir(),
		})
	}
	return entries, nil
}

// ReadEntry returns the contents of one container entry.
func (z *ZipExtractor) ReadEntry(container []byte, entryPath string) ([]byte, error) {
	r, err := openZip(container)
	if err != nil {
		return nil, err
	}
	f := findFile(r, entryPath)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
	}
	return readFile(f, z.limit())
}

// ExtractEntry writes one container entry below destDir, keeping its
// relative path, and returns the written file path.
func (z *ZipExtractor) ExtractEntry(container []byte, entryPath, destDir string) (string, error) {
	r, err := openZip(container)
	if err != nil {
		return "", err
	}
	f := findFile(r, entryPath)
	if f == nil {
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
	}

	destPath, err := SafeJoin(destDir, f.Name)
	if err != nil {
		return "", err
	}
	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
		return destPath, nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := extractFile(f, destPath, z.limit()); err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return destPath, nil
}

// ExtractImage delegates to the configured image extractor.
func (z *ZipExtractor) ExtractImage(ctx context.Context, image []byte, destDir string) error {
	if z.Images == nil {
		return errors.New("no image extractor configured")
	}
	return z.Images.ExtractImage(ctx, image, destDir)
}

func (z *ZipExtractor) limit() int64 {
	if z.MaxEntryBytes > 0 {
		return z.MaxEntryBytes
	}
	return DefaultMaxEntryBytes
}

// SafeJoin joins an entry path onto root and rejects results outside root.
func SafeJoin(root, entryPath string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination directory: %w", err)
	}
	dest := filepath.Join(absRoot, filepath.FromSlash(strings.TrimPrefix(entryPath, "/")))
	rel, err := filepath.Rel(absRoot, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, entryPath)
	}
	return dest, nil
}

func openZip(container []byte) (*zip.Reader, error) {
	r, err := zip.NewReader(bytes.NewReader(container), int64(len(container)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}
	return r, nil
}

func findFile(r *zip.Reader, entryPath string) *zip.File {
	want := strings.TrimSuffix(strings.TrimPrefix(entryPath, "/"), "/")
	for _, f := range r.File {
		if strings.TrimSuffix(f.Name, "/") == want {
			return f
		}
	}
	return nil
}

func readFile(f *zip.File, limit int64) (_ []byte, err error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s declares %d bytes", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return b, nil
}

// extractFile extracts a single file from the ZIP archive. A partial file
// is removed when the entry exceeds limit.
func extractFile(file *zip.File, destPath string, limit int64) (err error) {
	if file.UncompressedSize64 > uint64(limit) {
		return fmt.Errorf("%w: %s declares %d bytes", ErrEntryTooLarge, file.Name, file.UncompressedSize64)
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := destFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(destPath)
		}
	}()

	n, err := io.Copy(destFile, io.LimitReader(rc, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("%w: %s", ErrEntryTooLarge, file.Name)
	}
	return nil
}
