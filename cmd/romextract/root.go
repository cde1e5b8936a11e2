// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/android-llm-paper/android-llm-paper/internal/config"
	"github.com/android-llm-paper/android-llm-paper/internal/issue"
	"github.com/android-llm-paper/android-llm-paper/internal/logging"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the persistent flags shared by all subcommands.
type rootFlags struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "romextract",
		Short: "Extract classpaths and policies from Android firmware",
		Long: TitleStyle.Render("romextract") + SubtitleStyle.Render(" - Android firmware classpath extraction") + `

romextract reads a firmware dump, unpacks its updatable module packages and
reconstructs the device's boot and system server classpaths, copying every
referenced jar next to a classpath list file. Build identity and SELinux
policy files are extracted alongside.

` + SubtitleStyle.Render("Examples:") + `
  romextract remote google redfin redfin-user-13-TQ3A   Extract a remote dump
  romextract image system.img                           Extract a system image
  romextract image ./extracted/                         Extract an unpacked tree
  romextract config show                                Show current configuration`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging and full error chains")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $HOME/.config/romextract/config.cue)")

	rootCmd.AddCommand(newRemoteCommand(app, flags))
	rootCmd.AddCommand(newImageCommand(app, flags))
	rootCmd.AddCommand(newConfigCommand(app, flags))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code carried by an ExitError.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}

// loadOptions returns the config loading inputs for the current flags.
func (f *rootFlags) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigFilePath: f.configPath,
		DotEnvPath:     config.DotEnvFile,
	}
}

// loadConfig loads configuration and builds the root logger from it.
func (a *App) loadConfig(ctx context.Context, flags *rootFlags) (*config.Config, *log.Logger, error) {
	cfg, err := a.Config.Load(ctx, flags.loadOptions())
	if err != nil {
		return nil, nil, &ExitError{Code: ExitFailure, Err: err}
	}

	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	if flags.verbose {
		opts.Level = "debug"
	}
	logger, err := logging.New(a.stderr, opts)
	if err != nil {
		return nil, nil, &ExitError{Code: ExitFailure, Err: err}
	}
	return cfg, logger, nil
}

// reportError prints err with its suggestions and, when linked, the
// catalogued guidance. In verbose mode the full error chain is shown.
func (a *App) reportError(err error, verbose bool) {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		return
	}
	fmt.Fprintln(a.stderr, ErrorStyle.Render("Error: ")+ae.Format(verbose))
	if catalogued := ae.CatalogIssue(); catalogued != nil {
		if rendered, renderErr := catalogued.Render(a.MarkdownStyle); renderErr == nil {
			fmt.Fprint(a.stderr, rendered)
		}
	}
}

// renderMarkdown renders md with glamour, falling back to the raw text.
func (a *App) renderMarkdown(md string) string {
	out, err := glamour.Render(md, a.MarkdownStyle)
	if err != nil {
		return md
	}
	return out
}
