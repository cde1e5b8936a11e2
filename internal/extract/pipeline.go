// SPDX-License-Identifier: MPL-2.0

package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/android-llm-paper/android-llm-paper/internal/buildprop"
	"github.com/android-llm-paper/android-llm-paper/internal/source"
	"github.com/android-llm-paper/android-llm-paper/pkg/apex"
	"github.com/android-llm-paper/android-llm-paper/pkg/classpath"
	"github.com/android-llm-paper/android-llm-paper/pkg/descriptor"
)

// BuildPropName is the file name of the copied build.prop.
const BuildPropName = "build.prop"

// policy is one SELinux artifact. Optional policies are written empty when absent.
type policy struct {
	virtual  string
	name     string
	optional bool
}

var policies = []policy{
	{virtual: source.SystemSELinuxDir + "/plat_sepolicy.cil", name: "plat_sepolicy.cil"},
	{virtual: source.SystemSELinuxDir + "/plat_service_contexts", name: "plat_service_contexts"},
	{virtual: source.ExtensionSELinuxDir + "/system_ext_sepolicy.cil", name: "system_ext_sepolicy.cil", optional: true},
	{virtual: source.ExtensionSELinuxDir + "/system_ext_service_contexts", name: "system_ext_service_contexts", optional: true},
}

type (
	// Pipeline runs extractions against one firmware source.
	Pipeline struct {
		source    source.Backend
		extractor apex.Extractor
		codec     descriptor.Codec
		logger    *log.Logger
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)
)

// WithLogger sets the pipeline's logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCodec replaces the descriptor codec.
func WithCodec(c descriptor.Codec) Option {
	return func(p *Pipeline) {
		p.codec = c
	}
}

// New returns a pipeline reading from src and unpacking module payloads with extractor.
func New(src source.Backend, extractor apex.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:    src,
		extractor: extractor,
		codec:     descriptor.NewCodec(),
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one extraction. The returned report is non-nil whenever the
// output directory was prepared, including when the run fails with
// classpath.ErrMissingRuntimeModule.
func (p *Pipeline) Run(ctx context.Context, layout Layout) (*Report, error) {
	if layout.Out == nil || layout.Scratch == "" {
		return nil, errors.New("incomplete output layout")
	}

	buildProp, identity := p.readIdentity(ctx)
	report := &Report{OutDir: layout.Out(identity), Identity: identity}
	logger := p.logger.With("out", report.OutDir)

	if err := prepareDir(report.OutDir, layout.Wipe); err != nil {
		return nil, fmt.Errorf("preparing output directory: %w", err)
	}
	if err := writeIdentity(report.OutDir, buildProp, identity); err != nil {
		return report, err
	}
	report.Policies = p.writePolicies(ctx, report.OutDir)

	asm := classpath.NewAssembly(p.codec)
	p.ingestBase(ctx, asm)

	unpackRoot := filepath.Join(layout.Scratch, "apex")
	if err := os.MkdirAll(unpackRoot, 0o755); err != nil {
		return report, fmt.Errorf("preparing scratch directory: %w", err)
	}
	resolver := apex.NewResolver(p.extractor, p.codec, unpackRoot, apex.WithLogger(p.logger))
	report.Modules = p.processModules(ctx, resolver, asm)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	merged, err := asm.Finalize()
	if err != nil {
		logger.Error("classpath assembly aborted", "err", err)
		return report, err
	}

	mat := classpath.NewMaterializer(p.source, asm.ModuleDirs(), p.logger)
	for _, kind := range classpath.Kinds() {
		m := merged[kind]
		stats, err := mat.Materialize(ctx, m, filepath.Join(report.OutDir, kind.TreeName()))
		report.Classpaths = append(report.Classpaths, stats)
		if err != nil {
			return report, err
		}
		if err := classpath.WriteList(m, filepath.Join(report.OutDir, kind.ListName())); err != nil {
			return report, fmt.Errorf("writing %s: %w", kind.ListName(), err)
		}
		logger.Info("classpath written", "kind", kind, "entries", stats.Listed, "missing", len(stats.Missing))
	}
	return report, nil
}

// readIdentity fetches build.prop. A missing or unreadable file yields an
// empty identity.
func (p *Pipeline) readIdentity(ctx context.Context) ([]byte, buildprop.Identity) {
	data, err := p.source.Fetch(ctx, source.BuildPropPath)
	if err != nil {
		p.logger.Warn("build.prop unavailable", "path", source.BuildPropPath, "err", err)
		return nil, buildprop.Identity{}
	}
	id := buildprop.Parse(data).Identity()
	if missing := id.Missing(); len(missing) > 0 {
		p.logger.Warn("build identity incomplete", "missing", missing)
	}
	return data, id
}

func (p *Pipeline) writePolicies(ctx context.Context, out string) []PolicyResult {
	results := make([]PolicyResult, 0, len(policies))
	for _, pol := range policies {
		res := PolicyResult{Name: pol.name}
		data, err := p.source.Fetch(ctx, pol.virtual)
		switch {
		case err == nil:
			res.Found = true
		case pol.optional && errors.Is(err, source.ErrNotFound):
			data = []byte{}
		default:
			p.logger.Warn("policy unavailable", "path", pol.virtual, "err", err)
			results = append(results, res)
			continue
		}
		if err := classpath.WriteFileAtomic(filepath.Join(out, pol.name), data); err != nil {
			p.logger.Error("writing policy", "name", pol.name, "err", err)
		} else {
			res.Written = true
		}
		results = append(results, res)
	}
	return results
}

// ingestBase loads the base partition fragments. An absent or broken
// descriptor leaves only its own kind empty.
func (p *Pipeline) ingestBase(ctx context.Context, asm *classpath.Assembly) {
	blobs := make(map[classpath.Kind][]byte, 2)
	for _, kind := range classpath.Kinds() {
		vp := path.Join(source.BaseClasspathDir, kind.DescriptorName())
		data, err := p.source.Fetch(ctx, vp)
		if err != nil {
			p.logger.Warn("base classpath descriptor unavailable", "path", vp, "err", err)
			continue
		}
		blobs[kind] = data
	}
	if err := asm.IngestBase(blobs[classpath.KindBoot], blobs[classpath.KindSystemServer]); err != nil {
		p.logger.Error("base classpath descriptor unusable", "err", err)
	}
}

// processModules drives every discovered package to a terminal state, one
// package at a time, in listing order.
func (p *Pipeline) processModules(ctx context.Context, resolver *apex.Resolver, asm *classpath.Assembly) []apex.Result {
	listing, err := p.source.List(ctx, source.ModuleDir)
	if err != nil {
		p.logger.Error("module discovery failed", "path", source.ModuleDir, "err", err)
		return nil
	}

	var results []apex.Result
	for _, entry := range listing {
		if entry.IsDir {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		results = append(results, p.processModule(ctx, resolver, asm, entry.Path).Result())
	}
	return results
}

func (p *Pipeline) processModule(ctx context.Context, resolver *apex.Resolver, asm *classpath.Assembly, virtualPath string) *apex.Package {
	logger := p.logger.With("package", virtualPath)

	blob, err := p.source.Fetch(ctx, virtualPath)
	if err != nil {
		pkg := apex.NewPackage(virtualPath, nil)
		_ = pkg.Fail(apex.ReasonFetchFailed, err)
		logger.Warn("module failed", "reason", apex.ReasonFetchFailed, "err", err)
		return pkg
	}

	pkg := apex.NewPackage(virtualPath, blob)
	if err := resolver.Resolve(ctx, pkg, asm.Admit); err != nil {
		return pkg
	}

	role, err := asm.IngestModule(classpath.Module{Name: pkg.Name(), Dir: pkg.Dir()})
	if err != nil {
		reason := apex.ReasonFor(err)
		_ = pkg.Fail(reason, err)
		logger.Warn("module failed", "module", pkg.Name(), "reason", reason, "err", err)
		return pkg
	}
	if err := pkg.MarkClasspathParsed(); err != nil {
		_ = pkg.Fail(apex.ReasonDecodeError, err)
		return pkg
	}
	_ = pkg.Classify(role == classpath.RoleRuntime)
	logger.Info("module classified", "module", pkg.Name(), "role", role)
	return pkg
}

func prepareDir(dir string, wipe bool) error {
	if wipe {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return os.MkdirAll(dir, 0o755)
}

func writeIdentity(out string, buildProp []byte, id buildprop.Identity) error {
	if buildProp != nil {
		if err := classpath.WriteFileAtomic(filepath.Join(out, BuildPropName), buildProp); err != nil {
			return fmt.Errorf("writing %s: %w", BuildPropName, err)
		}
	}
	for _, a := range id.Artifacts() {
		if err := classpath.WriteFileAtomic(filepath.Join(out, a.Name), []byte(a.Value)); err != nil {
			return fmt.Errorf("writing %s: %w", a.Name, err)
		}
	}
	return nil
}
