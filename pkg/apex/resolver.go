// SPDX-License-Identifier: MPL-2.0

package apex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/android-llm-paper/android-llm-paper/pkg/archive"
	"github.com/android-llm-paper/android-llm-paper/pkg/classpath"
	"github.com/android-llm-paper/android-llm-paper/pkg/descriptor"
)

// Entry names inside a module package.
const (
	ManifestEntry    = "apex_manifest.pb"
	PayloadEntry     = "apex_payload.img"
	IndirectionEntry = "original_apex"
)

var (
	// ErrManifestMissing is returned when a package has no manifest entry.
	ErrManifestMissing = errors.New("module manifest missing")
	// ErrPayloadMissing is returned when neither an indirection entry nor a
	// payload entry is present.
	ErrPayloadMissing = errors.New("module payload missing")
	// ErrUnpack is returned when the payload image cannot be decompressed.
	ErrUnpack = errors.New("unpack module payload")
	// ErrInvalidModuleName is returned for canonical names that are not a
	// single path segment.
	ErrInvalidModuleName = errors.New("invalid module name")
)

type (
	// Extractor is the archive surface the resolver needs.
	Extractor interface {
		ReadEntry(container []byte, entryPath string) ([]byte, error)
		ExtractImage(ctx context.Context, image []byte, destDir string) error
	}

	// ManifestDecoder decodes module manifests.
	ManifestDecoder interface {
		DecodeManifest(b []byte) (descriptor.Manifest, error)
	}

	// AdmitFunc decides whether a package with the given canonical name may
	// be unpacked.
	AdmitFunc func(name string) error

	// Resolver drives packages from Discovered to Unpacked.
	Resolver struct {
		extractor Extractor
		decoder   ManifestDecoder
		scratch   string
		logger    *log.Logger
	}

	// ResolverOption configures a Resolver.
	ResolverOption func(*Resolver)
)

// WithLogger sets the resolver's logger.
func WithLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver returns a resolver that unpacks payloads into
// scratchDir/<module name>.
func NewResolver(extractor Extractor, decoder ManifestDecoder, scratchDir string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		extractor: extractor,
		decoder:   decoder,
		scratch:   scratchDir,
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadManifest decodes the package's manifest entry.
func (r *Resolver) ReadManifest(blob []byte) (descriptor.Manifest, error) {
	b, err := r.extractor.ReadEntry(blob, ManifestEntry)
	if errors.Is(err, archive.ErrEntryNotFound) {
		return descriptor.Manifest{}, fmt.Errorf("%w: %w", ErrManifestMissing, err)
	}
	if err != nil {
		return descriptor.Manifest{}, err
	}
	m, err := r.decoder.DecodeManifest(b)
	if err != nil {
		return descriptor.Manifest{}, err
	}
	if err := ValidateModuleName(m.Name); err != nil {
		return descriptor.Manifest{}, err
	}
	return m, nil
}

// ResolvePayload returns the payload image bytes. An indirection entry, when
// present, wins over a direct payload entry at the outer level.
func (r *Resolver) ResolvePayload(blob []byte) ([]byte, error) {
	inner, err := r.extractor.ReadEntry(blob, IndirectionEntry)
	switch {
	case err == nil:
		payload, err := r.extractor.ReadEntry(inner, PayloadEntry)
		if errors.Is(err, archive.ErrEntryNotFound) {
			return nil, fmt.Errorf("%w: %s holds no %s", ErrPayloadMissing, IndirectionEntry, PayloadEntry)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", IndirectionEntry, err)
		}
		return payload, nil
	case !errors.Is(err, archive.ErrEntryNotFound):
		return nil, err
	}

	payload, err := r.extractor.ReadEntry(blob, PayloadEntry)
	if errors.Is(err, archive.ErrEntryNotFound) {
		return nil, ErrPayloadMissing
	}
	return payload, err
}

// Unpack decompresses payload into the module's scratch directory and returns
// the directory. The payload is extracted into a staging sibling first; an
// existing directory for the module is replaced only once extraction succeeds.
func (r *Resolver) Unpack(ctx context.Context, payload []byte, moduleName string) (string, error) {
	if err := ValidateModuleName(moduleName); err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.scratch, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnpack, err)
	}
	staging, err := os.MkdirTemp(r.scratch, "."+moduleName+".unpack-")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnpack, err)
	}
	if err := r.extractor.ExtractImage(ctx, payload, staging); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("%w: %w", ErrUnpack, err)
	}

	dir := filepath.Join(r.scratch, moduleName)
	if err := os.RemoveAll(dir); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("%w: clear %s: %w", ErrUnpack, dir, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("%w: %w", ErrUnpack, err)
	}
	return dir, nil
}

// Resolve drives p from Discovered to Unpacked. Each step's failure moves p
// to StateFailed with the matching reason; the same error is returned. admit
// runs between reading the manifest and unpacking and may be nil.
func (r *Resolver) Resolve(ctx context.Context, p *Package, admit AdmitFunc) error {
	logger := r.logger.With("package", p.Source)

	m, err := r.ReadManifest(p.blob)
	if err != nil {
		return r.fail(logger, p, err)
	}
	p.manifest = m
	if err := p.advance(StateManifestRead); err != nil {
		return err
	}
	logger = logger.With("module", m.Name)

	if admit != nil {
		if err := admit(m.Name); err != nil {
			return r.fail(logger, p, err)
		}
	}

	payload, err := r.ResolvePayload(p.blob)
	if err != nil {
		return r.fail(logger, p, err)
	}
	p.payload = payload
	p.blob = nil
	if err := p.advance(StatePayloadResolved); err != nil {
		return err
	}

	dir, err := r.Unpack(ctx, p.payload, m.Name)
	if err != nil {
		return r.fail(logger, p, err)
	}
	p.dir = dir
	p.payload = nil
	if err := p.advance(StateUnpacked); err != nil {
		return err
	}
	logger.Debug("module unpacked", "dir", dir)
	return nil
}

func (r *Resolver) fail(logger *log.Logger, p *Package, err error) error {
	reason := ReasonFor(err)
	if ferr := p.Fail(reason, err); ferr != nil {
		return ferr
	}
	logger.Warn("module failed", "reason", reason, "err", err)
	return err
}

// ReasonFor maps an error from resolution or ingestion to a failure reason.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrManifestMissing):
		return ReasonManifestMissing
	case errors.Is(err, ErrPayloadMissing):
		return ReasonPayloadMissing
	case errors.Is(err, ErrInvalidModuleName):
		return ReasonInvalidName
	case errors.Is(err, classpath.ErrDuplicateRuntimeModule):
		return ReasonDuplicateRuntimeModule
	case errors.Is(err, classpath.ErrDuplicateModule):
		return ReasonDuplicateModule
	case errors.Is(err, ErrUnpack):
		return ReasonUnpackFailed
	case errors.Is(err, archive.ErrInvalidContainer):
		return ReasonInvalidContainer
	case errors.Is(err, descriptor.ErrMalformed):
		return ReasonDecodeError
	default:
		return ReasonDecodeError
	}
}

// ValidateModuleName rejects names that cannot serve as a single directory
// and entry path segment.
func ValidateModuleName(name string) error {
	if name == "" || name == "." || name == ".." || !filepath.IsLocal(name) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == 0 {
			return fmt.Errorf("%w: %q", ErrInvalidModuleName, name)
		}
	}
	return nil
}
