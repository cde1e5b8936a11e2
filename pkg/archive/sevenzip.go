// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultSevenZipBinary is looked up on PATH when no binary is configured.
const DefaultSevenZipBinary = "7z"

// 7z exit codes; 1 means warnings only (typically unsupported special files
// such as device nodes inside a filesystem image), which still yields a
// usable tree.
const (
	sevenZipExitOK      = 0
	sevenZipExitWarning = 1
)

// ErrToolFailed is returned when the 7z tool exits with a fatal status.
var ErrToolFailed = errors.New("7z failed")

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// SevenZip runs the 7z tool to list and extract filesystem images.
	SevenZip struct {
		bin         string
		execCommand ExecCommandFunc
	}

	// SevenZipOption configures a SevenZip.
	SevenZipOption func(*SevenZip)

	// ToolError carries the tool output of a failed invocation.
	ToolError struct {
		Args     []string
		ExitCode int
		Output   string
	}
)

// Error implements the error interface.
func (e *ToolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if len(out) > 512 {
		out = out[len(out)-512:]
	}
	return fmt.Sprintf("7z %s: exit status %d: %s", strings.Join(e.Args, " "), e.ExitCode, out)
}

// Unwrap returns ErrToolFailed so callers can use errors.Is.
func (e *ToolError) Unwrap() error { return ErrToolFailed }

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) SevenZipOption {
	return func(s *SevenZip) {
		s.execCommand = fn
	}
}

// NewSevenZip creates a SevenZip using bin, or DefaultSevenZipBinary when empty.
func NewSevenZip(bin string, opts ...SevenZipOption) *SevenZip {
	if strings.TrimSpace(bin) == "" {
		bin = DefaultSevenZipBinary
	}
	s := &SevenZip{
		bin:         bin,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether the configured binary can be found.
func (s *SevenZip) Available() bool {
	_, err := exec.LookPath(s.bin)
	return err == nil
}

// ExtractImage writes image to a temporary file and fully extracts it into destDir.
func (s *SevenZip) ExtractImage(ctx context.Context, image []byte, destDir string) (err error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filepath.Clean(destDir)), "romextract-image-*.img")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(image); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp image: %w", err)
	}

	return s.ExtractImageFile(ctx, tmp.Name(), destDir)
}

// ExtractImageFile fully extracts the image at imagePath into destDir.
// Paths follow "--" so a leading dash is never read as a switch.
func (s *SevenZip) ExtractImageFile(ctx context.Context, imagePath, destDir string) error {
	_, err := s.run(ctx, "x", "-y", "-o"+destDir, "--", imagePath)
	return err
}

// Extract extracts a single entry of the image at imagePath into destDir,
// keeping its relative path, and returns the path of the extracted file.
func (s *SevenZip) Extract(ctx context.Context, imagePath, entryPath, destDir string) (string, error) {
	entryPath = strings.TrimPrefix(entryPath, "/")
	dest, err := SafeJoin(destDir, entryPath)
	if err != nil {
		return "", err
	}
	if _, err := s.run(ctx, "x", "-y", "-o"+destDir, "--", imagePath, entryPath); err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("%w: %s", ErrEntryNotFound, entryPath)
	}
	return dest, nil
}

// List returns the entries of the image at imagePath in archive order.
func (s *SevenZip) List(ctx context.Context, imagePath string) ([]Entry, error) {
	out, err := s.run(ctx, "l", "-ba", "-slt", "--", imagePath)
	if err != nil {
		return nil, err
	}
	return ParseTechnicalListing(out), nil
}

// ParseTechnicalListing parses `7z l -slt` output. Each entry is a block of
// "Key = Value" lines separated by a blank line; when the archive header is
// present it ends at a "----------" line and is skipped.
func ParseTechnicalListing(out []byte) []Entry {
	if idx := bytes.Index(out, []byte("\n----------\n")); idx >= 0 {
		out = out[idx+len("\n----------\n"):]
	}

	var (
		entries []Entry
		cur     Entry
		hasPath bool
	)
	flush := func() {
		if hasPath {
			entries = append(entries, cur)
		}
		cur = Entry{}
		hasPath = false
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		key, value, ok := strings.Cut(line, " = ")
		if !ok {
			continue
		}
		switch key {
		case "Path":
			cur.Path = filepath.ToSlash(value)
			hasPath = true
		case "Folder":
			cur.IsDir = cur.IsDir || value == "+"
		case "Attributes":
			cur.IsDir = cur.IsDir || strings.HasPrefix(value, "D")
		}
	}
	flush()
	return entries
}

func (s *SevenZip) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := s.execCommand(ctx, s.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sevenZipExitOK, sevenZipExitWarning:
			return stdout.Bytes(), nil
		}
		return nil, &ToolError{Args: args, ExitCode: exitErr.ExitCode(), Output: stderr.String() + stdout.String()}
	}
	return nil, fmt.Errorf("running %s: %w", s.bin, err)
}
