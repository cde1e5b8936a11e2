// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/android-llm-paper/android-llm-paper/internal/config"
	"github.com/android-llm-paper/android-llm-paper/internal/extract"
	"github.com/android-llm-paper/android-llm-paper/internal/issue"
	"github.com/android-llm-paper/android-llm-paper/internal/source"
	"github.com/android-llm-paper/android-llm-paper/internal/source/dir"
	"github.com/android-llm-paper/android-llm-paper/internal/source/diskimage"
	"github.com/android-llm-paper/android-llm-paper/internal/source/remote"
	"github.com/android-llm-paper/android-llm-paper/internal/source/s3mirror"
	"github.com/android-llm-paper/android-llm-paper/pkg/archive"
	"github.com/android-llm-paper/android-llm-paper/pkg/classpath"
)

// run is one prepared extraction: a source, where to write, and what to
// release afterwards.
type run struct {
	source  source.Backend
	layout  extract.Layout
	tools   ImageTools
	cleanup func()
}

func newRemoteCommand(app *App, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remote <oem> <product> <branch>",
		Short: "Extract a firmware dump from the dump repository",
		Long: `Extract a firmware dump hosted on the dump repository.

Output goes to <rom_dir>/<oem>/<product>/<branch>/out. Downloads are kept in
.../temp and resumed on the next run.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords := remote.Coordinates{OEM: args[0], Product: args[1], Branch: args[2]}
			return app.extract(cmd.Context(), flags, func(_ context.Context, cfg *config.Config, logger *log.Logger) (*run, error) {
				return app.prepareRemote(cfg, logger, coords)
			})
		},
	}
}

func newImageCommand(app *App, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "image <path>",
		Short: "Extract a local system image or unpacked partition tree",
		Long: `Extract a local firmware image.

<path> is either a system partition image (read with 7-Zip) or a directory
holding an already extracted system-as-root tree. Output goes to
<base_rom_dir>/<brand>/<product>/<build id>, which is wiped first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.extract(cmd.Context(), flags, func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*run, error) {
				return app.prepareImage(ctx, cfg, logger, args[0])
			})
		},
	}
}

// extract loads configuration, prepares the source, runs the pipeline and
// renders the report. A missing runtime module still renders the report
// and then exits with ExitMissingRuntimeModule.
func (a *App) extract(ctx context.Context, flags *rootFlags, prepare func(context.Context, *config.Config, *log.Logger) (*run, error)) error {
	cfg, logger, err := a.loadConfig(ctx, flags)
	if err != nil {
		a.reportError(err, flags.verbose)
		return err
	}

	r, err := prepare(ctx, cfg, logger)
	if err != nil {
		a.reportError(err, flags.verbose)
		return err
	}
	defer r.cleanup()

	extractor := archive.NewExtractor(r.tools)
	pipeline := extract.New(r.source, extractor, extract.WithLogger(logger))
	report, runErr := pipeline.Run(ctx, r.layout)
	if report != nil {
		fmt.Fprint(a.stdout, a.renderMarkdown(report.Markdown()))
	}
	if runErr == nil {
		return nil
	}

	var wrapped error
	code := ExitFailure
	switch {
	case errors.Is(runErr, classpath.ErrMissingRuntimeModule):
		code = ExitMissingRuntimeModule
		wrapped = issue.NewErrorContext().
			WithOperation("assemble classpaths").
			WithSuggestion("Check the module table above for a failed " + classpath.RuntimeModule + " package").
			WithIssue(issue.MissingRuntimeModuleId).
			Wrap(runErr).
			BuildError()
	case errors.Is(runErr, context.Canceled):
		wrapped = runErr
	default:
		wrapped = issue.NewErrorContext().
			WithOperation("extract firmware").
			WithIssue(issue.OutputNotWritableId).
			Wrap(runErr).
			BuildError()
	}
	a.reportError(wrapped, flags.verbose)
	return &ExitError{Code: code, Err: wrapped}
}

// prepareRemote builds the remote backend, optionally behind the mirror.
func (a *App) prepareRemote(cfg *config.Config, logger *log.Logger, coords remote.Coordinates) (*run, error) {
	if err := coords.Validate(); err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: issue.NewErrorContext().
			WithOperation("parse firmware coordinates").
			WithResource(coords.String()).
			WithIssue(issue.InvalidCoordinatesId).
			Wrap(err).
			BuildError()}
	}

	layout := extract.RemoteLayout(cfg.Output.RomDir.String(), coords.OEM, coords.Product, coords.Branch)
	httpClient := a.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.Remote.Timeout) * time.Second}
	}
	client, err := remote.New(coords,
		remote.WithHTTPClient(httpClient),
		remote.WithBaseURL(cfg.Remote.BaseURL.String()),
		remote.WithUserAgent(cfg.Remote.UserAgent),
		remote.WithCacheDir(filepath.Join(layout.Scratch, "download")),
		remote.WithRetry(int(cfg.Remote.MaxAttempts), remote.DefaultBackoff),
		remote.WithLogger(logger.WithPrefix("remote")),
	)
	if err != nil {
		return nil, &ExitError{Code: ExitFailure, Err: err}
	}

	var src source.Backend = client
	if cfg.Mirror.Enabled {
		mirror, err := s3mirror.New(s3mirror.Config{
			Endpoint:  cfg.Mirror.Endpoint,
			Region:    cfg.Mirror.Region,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			Bucket:    cfg.Mirror.Bucket,
			Prefix:    cfg.Mirror.Prefix,
			UseSSL:    cfg.Mirror.UseSSL,
		}, path.Join(coords.OEM, coords.Product, coords.Branch))
		if err != nil {
			_ = client.Close()
			return nil, &ExitError{Code: ExitFailure, Err: issue.NewErrorContext().
				WithOperation("connect to mirror").
				WithResource(cfg.Mirror.Endpoint).
				WithIssue(issue.MirrorUnavailableId).
				Wrap(err).
				BuildError()}
		}
		src = s3mirror.NewReadThrough(mirror, client, logger.WithPrefix("mirror"))
	}

	tools := a.Tools(cfg.Tools.SevenZip.String())
	if !tools.Available() {
		logger.Warn("7-Zip not found, module payloads cannot be unpacked", "tool", cfg.Tools.SevenZip)
	}

	logger.Info("extracting remote dump", "dump", coords.String())
	return &run{
		source: src,
		layout: layout,
		tools:  tools,
		cleanup: func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing remote client", "err", err)
			}
		},
	}, nil
}

// prepareImage opens a system image file or an extracted directory tree.
// Scratch space lives in a temporary directory removed after the run. Image
// files are listed up front so an unreadable image fails before any output
// is written.
func (a *App) prepareImage(ctx context.Context, cfg *config.Config, logger *log.Logger, imagePath string) (*run, error) {
	fi, err := os.Stat(imagePath)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: issue.NewErrorContext().
			WithOperation("open firmware image").
			WithResource(imagePath).
			WithIssue(issue.ImageNotFoundId).
			Wrap(err).
			BuildError()}
	}

	tools := a.Tools(cfg.Tools.SevenZip.String())
	scratch, err := os.MkdirTemp("", "romextract-*")
	if err != nil {
		return nil, &ExitError{Code: ExitFailure, Err: fmt.Errorf("creating scratch directory: %w", err)}
	}
	cleanup := func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("removing scratch directory", "path", scratch, "err", err)
		}
	}

	var src source.Backend
	if fi.IsDir() {
		src, err = dir.Open(imagePath)
	} else {
		if !tools.Available() {
			cleanup()
			return nil, &ExitError{Code: ExitFailure, Err: issue.NewErrorContext().
				WithOperation("open firmware image").
				WithResource(imagePath).
				WithIssue(issue.ImageToolMissingId).
				Wrap(fmt.Errorf("%s not found", cfg.Tools.SevenZip)).
				BuildError()}
		}
		var img *diskimage.Image
		img, err = diskimage.Open(imagePath, tools,
			diskimage.WithCacheEntries(int(cfg.Cache.BlobEntries)),
			diskimage.WithScratchDir(filepath.Join(scratch, "blobs")),
			diskimage.WithLogger(logger.WithPrefix("image")),
		)
		if err == nil {
			if _, err = img.List(ctx, source.ModuleDir); errors.Is(err, source.ErrNotFound) {
				err = nil
			}
		}
		src = img
	}
	if err != nil {
		cleanup()
		return nil, &ExitError{Code: ExitFailure, Err: issue.NewErrorContext().
			WithOperation("open firmware image").
			WithResource(imagePath).
			WithIssue(issue.ImageUnreadableId).
			Wrap(err).
			BuildError()}
	}

	logger.Info("extracting image", "path", imagePath)
	return &run{
		source:  src,
		layout:  extract.ImageLayout(cfg.Output.BaseRomDir.String(), scratch),
		tools:   tools,
		cleanup: cleanup,
	}, nil
}
