// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/android-llm-paper/android-llm-paper/internal/config"
	"github.com/android-llm-paper/android-llm-paper/internal/issue"
)

type stubProvider struct {
	cfg  *config.Config
	err  error
	seen config.LoadOptions
}

func (p *stubProvider) Load(_ context.Context, opts config.LoadOptions) (*config.Config, error) {
	p.seen = opts
	if p.err != nil {
		return nil, p.err
	}
	return p.cfg, nil
}

// execute runs the command tree with args and captures both streams.
func execute(t *testing.T, deps Dependencies, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	deps.Stdout = &out
	deps.Stderr = &errOut
	if deps.MarkdownStyle == "" {
		deps.MarkdownStyle = "notty"
	}
	app := NewApp(deps)

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err = root.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v0.4.0"
		Commit = "9f1c2ab"
		BuildDate = "2026-03-02T08:00:00Z"

		got := getVersionString()
		want := "v0.4.0 (commit: 9f1c2ab, built: 2026-03-02T08:00:00Z)"
		if got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestRootFlags_LoadOptions(t *testing.T) {
	t.Parallel()

	f := &rootFlags{configPath: "/etc/romextract.cue"}
	opts := f.loadOptions()
	if opts.ConfigFilePath != "/etc/romextract.cue" {
		t.Errorf("ConfigFilePath = %q", opts.ConfigFilePath)
	}
	if opts.DotEnvPath != config.DotEnvFile {
		t.Errorf("DotEnvPath = %q, want %q", opts.DotEnvPath, config.DotEnvFile)
	}
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(NewApp(Dependencies{Config: &stubProvider{cfg: config.DefaultConfig()}}))
	for _, name := range []string{"remote", "image", "config"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
	for _, flag := range []string{"verbose", "config"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestApp_ReportError(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	app := NewApp(Dependencies{Stderr: &stderr, MarkdownStyle: "notty"})

	err := issue.NewErrorContext().
		WithOperation("open firmware image").
		WithResource("/tmp/missing.img").
		WithIssue(issue.ImageNotFoundId).
		Wrap(errors.New("no such file or directory")).
		BuildError()
	app.reportError(&ExitError{Code: ExitUsage, Err: err}, false)

	got := stderr.String()
	for _, want := range []string{"open firmware image", "/tmp/missing.img", "Firmware image not found"} {
		if !strings.Contains(got, want) {
			t.Errorf("stderr missing %q:\n%s", want, got)
		}
	}
}

func TestApp_ReportError_PlainErrorIsSilent(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	app := NewApp(Dependencies{Stderr: &stderr})
	app.reportError(errors.New("plain"), true)
	if stderr.Len() != 0 {
		t.Errorf("stderr = %q, want empty", stderr.String())
	}
}

func TestApp_LoadConfig_VerboseForcesDebug(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	app := NewApp(Dependencies{Config: &stubProvider{cfg: config.DefaultConfig()}, Stderr: &stderr})
	_, logger, err := app.loadConfig(t.Context(), &rootFlags{verbose: true})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	logger.Debug("verbose-marker")
	if !strings.Contains(stderr.String(), "verbose-marker") {
		t.Errorf("debug message not logged in verbose mode: %q", stderr.String())
	}
}
