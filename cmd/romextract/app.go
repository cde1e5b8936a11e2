// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/android-llm-paper/android-llm-paper/internal/config"
	"github.com/android-llm-paper/android-llm-paper/internal/source/diskimage"
	"github.com/android-llm-paper/android-llm-paper/pkg/archive"
)

// DefaultMarkdownStyle lets glamour pick a style from the terminal.
const DefaultMarkdownStyle = "auto"

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every Cobra handler receives an App and reaches
	// configuration, tools and output through it.
	App struct {
		Config        ConfigProvider
		Tools         ToolFactory
		HTTPClient    *http.Client
		MarkdownStyle string
		stdout        io.Writer
		stderr        io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		Tools  ToolFactory
		// HTTPClient replaces the remote backend's client. When nil a client
		// honoring remote.timeout is built per run.
		HTTPClient    *http.Client
		MarkdownStyle string
		Stdout        io.Writer
		Stderr        io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// ImageTools decompresses filesystem images: whole module payloads and
	// single entries of a system image.
	ImageTools interface {
		archive.ImageExtractor
		diskimage.Tool
		Available() bool
	}

	// ToolFactory builds ImageTools for the configured binary.
	ToolFactory func(binary string) ImageTools
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Tools == nil {
		deps.Tools = func(binary string) ImageTools { return archive.NewSevenZip(binary) }
	}
	if deps.MarkdownStyle == "" {
		deps.MarkdownStyle = DefaultMarkdownStyle
	}

	return &App{
		Config:        deps.Config,
		Tools:         deps.Tools,
		HTTPClient:    deps.HTTPClient,
		MarkdownStyle: deps.MarkdownStyle,
		stdout:        deps.Stdout,
		stderr:        deps.Stderr,
	}
}
