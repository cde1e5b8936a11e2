// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/android-llm-paper/android-llm-paper/internal/cueutil"
	"github.com/android-llm-paper/android-llm-paper/internal/issue"
)

// isolated returns options that never see the caller's real config.
func isolated(t *testing.T) LoadOptions {
	t.Helper()
	return LoadOptions{
		ConfigDirPath: t.TempDir(),
		WorkDir:       t.TempDir(),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Output.RomDir != "rom" || cfg.Output.BaseRomDir != "base_rom" {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.Remote.BaseURL != DefaultBaseURL {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout != 600 || cfg.Remote.MaxAttempts != 3 {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Mirror.Enabled || cfg.Mirror.Prefix != "dumps" {
		t.Errorf("Mirror = %+v", cfg.Mirror)
	}
	if cfg.Tools.SevenZip != "7z" {
		t.Errorf("Tools.SevenZip = %q", cfg.Tools.SevenZip)
	}
	if cfg.Cache.BlobEntries != 64 {
		t.Errorf("Cache.BlobEntries = %d", cfg.Cache.BlobEntries)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigDir(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG lookup is Linux-only")
	}

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join(xdg, AppName); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestKeysAndEnvName(t *testing.T) {
	t.Parallel()

	keys := Keys()
	if len(keys) != 18 {
		t.Errorf("Keys() has %d entries, want 18", len(keys))
	}
	if keys[0] != "cache.blob_entries" {
		t.Errorf("Keys()[0] = %q, want sorted order", keys[0])
	}
	if got := EnvName("mirror.access_key"); got != "ROMEXTRACT_MIRROR_ACCESS_KEY" {
		t.Errorf("EnvName() = %q", got)
	}
}

func TestLoad_ReturnsDefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, path, err := loadWithOptions(context.Background(), isolated(t))
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want none", path)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_ConfigDirFile(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	cfgPath := filepath.Join(opts.ConfigDirPath, "config.cue")
	writeFile(t, cfgPath, `
output: rom_dir: "/data/rom"
remote: {
	max_attempts: 5
	user_agent:   "lab-bot/1.0"
}
log: level: "debug"
`)

	cfg, path, err := loadWithOptions(context.Background(), opts)
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if path != cfgPath {
		t.Errorf("resolved path = %q, want %q", path, cfgPath)
	}
	if cfg.Output.RomDir != "/data/rom" {
		t.Errorf("RomDir = %q", cfg.Output.RomDir)
	}
	if cfg.Output.BaseRomDir != DefaultBaseRomDir {
		t.Errorf("BaseRomDir = %q, want default kept", cfg.Output.BaseRomDir)
	}
	if cfg.Remote.MaxAttempts != 5 || cfg.Remote.UserAgent != "lab-bot/1.0" {
		t.Errorf("Remote = %+v", cfg.Remote)
	}
	if cfg.Remote.Timeout != DefaultTimeoutSeconds {
		t.Errorf("Timeout = %d, want default kept", cfg.Remote.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_WorkDirFallback(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	local := filepath.Join(opts.WorkDir, "config.cue")
	writeFile(t, local, `tools: seven_zip: "/opt/7zz"`)

	cfg, path, err := loadWithOptions(context.Background(), opts)
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if path != local {
		t.Errorf("resolved path = %q, want %q", path, local)
	}
	if cfg.Tools.SevenZip != "/opt/7zz" {
		t.Errorf("SevenZip = %q", cfg.Tools.SevenZip)
	}
}

func TestLoad_CustomPath(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	// A file in the config dir must be ignored when a path is forced.
	writeFile(t, filepath.Join(opts.ConfigDirPath, "config.cue"), `cache: blob_entries: 2`)
	custom := filepath.Join(t.TempDir(), "custom.cue")
	writeFile(t, custom, `cache: blob_entries: 9`)
	opts.ConfigFilePath = custom

	cfg, path, err := loadWithOptions(context.Background(), opts)
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if path != custom {
		t.Errorf("resolved path = %q, want %q", path, custom)
	}
	if cfg.Cache.BlobEntries != 9 {
		t.Errorf("BlobEntries = %d, want 9", cfg.Cache.BlobEntries)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		missing  bool
		contains []string
	}{
		{
			name:     "custom path not found",
			missing:  true,
			contains: []string{"load configuration", "config file not found"},
		},
		{
			name:     "invalid CUE syntax",
			content:  `log: level: "debug`,
			contains: []string{"load configuration"},
		},
		{
			name:     "schema violation",
			content:  `log: level: "verbose"`,
			contains: []string{"load configuration", "log.level"},
		},
		{
			name:     "unknown key",
			content:  `ui: verbose: true`,
			contains: []string{"load configuration", "ui"},
		},
		{
			name:     "enabled mirror without bucket",
			content:  "mirror: {\n\tenabled: true\n\tendpoint: \"localhost:9000\"\n\taccess_key: \"a\"\n\tsecret_key: \"b\"\n}\n",
			contains: []string{"validate configuration", "mirror.bucket"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := isolated(t)
			opts.ConfigFilePath = filepath.Join(t.TempDir(), "config.cue")
			if !tt.missing {
				writeFile(t, opts.ConfigFilePath, tt.content)
			}

			_, _, err := loadWithOptions(context.Background(), opts)
			if err == nil {
				t.Fatal("loadWithOptions() error = nil, want error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("error type = %T, want *issue.ActionableError", err)
			}
			if ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("Issue = %d, want ConfigLoadFailedId", ae.Issue)
			}
			if !ae.HasSuggestions() {
				t.Error("error should carry suggestions")
			}
			for _, s := range tt.contains {
				if !strings.Contains(err.Error(), s) {
					t.Errorf("error %q missing %q", err, s)
				}
			}
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := loadWithOptions(ctx, isolated(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// Not parallel: mutates the process environment.
func TestLoad_EnvOverrides(t *testing.T) {
	opts := isolated(t)
	writeFile(t, filepath.Join(opts.ConfigDirPath, "config.cue"), `log: level: "warn"`)

	t.Setenv("ROMEXTRACT_LOG_LEVEL", "error")
	t.Setenv("ROMEXTRACT_REMOTE_MAX_ATTEMPTS", "7")
	t.Setenv("ROMEXTRACT_MIRROR_USE_SSL", "false")

	cfg, _, err := loadWithOptions(context.Background(), opts)
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want env to beat file", cfg.Log.Level)
	}
	if cfg.Remote.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.Remote.MaxAttempts)
	}
	if cfg.Mirror.UseSSL {
		t.Error("Mirror.UseSSL = true, want false from env")
	}
}

// Not parallel: mutates the process environment.
func TestLoad_DotEnv(t *testing.T) {
	opts := isolated(t)
	opts.DotEnvPath = filepath.Join(opts.WorkDir, ".env")
	writeFile(t, opts.DotEnvPath, strings.Join([]string{
		"ROMEXTRACT_OUTPUT_ROM_DIR=/srv/rom",
		"ROMEXTRACT_CACHE_BLOB_ENTRIES=128",
		"ROMEXTRACT_LOG_FORMAT=json",
		"UNRELATED=1",
	}, "\n"))
	// The real environment wins over the dotenv file.
	t.Setenv("ROMEXTRACT_LOG_FORMAT", "logfmt")

	cfg, _, err := loadWithOptions(context.Background(), opts)
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if cfg.Output.RomDir != "/srv/rom" {
		t.Errorf("RomDir = %q", cfg.Output.RomDir)
	}
	if cfg.Cache.BlobEntries != 128 {
		t.Errorf("BlobEntries = %d", cfg.Cache.BlobEntries)
	}
	if cfg.Log.Format != "logfmt" {
		t.Errorf("Log.Format = %q, want process env to win", cfg.Log.Format)
	}
	if _, set := os.LookupEnv("ROMEXTRACT_OUTPUT_ROM_DIR"); set {
		t.Error("dotenv values must not leak into the process environment")
	}
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	opts.DotEnvPath = filepath.Join(opts.WorkDir, ".env")
	if _, _, err := loadWithOptions(context.Background(), opts); err != nil {
		t.Errorf("loadWithOptions() error = %v, want missing .env ignored", err)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested")
	path, err := CreateDefaultConfig(dir)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("path = %q", path)
	}

	// Existing files are left alone.
	writeFile(t, path, `log: level: "debug"`)
	if _, err := CreateDefaultConfig(dir); err != nil {
		t.Fatalf("second CreateDefaultConfig() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `log: level: "debug"` {
		t.Errorf("existing config overwritten: %q", data)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Output.RomDir = "/srv/rom"
	cfg.Remote.UserAgent = "lab-bot/1.0"
	cfg.Mirror.Endpoint = "minio.local:9000"
	cfg.Mirror.Bucket = "firmware"
	cfg.Mirror.Region = "eu-west-1"
	cfg.Log.Format = "json"

	content := GenerateCUE(cfg)
	if strings.Contains(content, "secret_key") || strings.Contains(content, "access_key:") {
		t.Error("GenerateCUE() must not write credentials")
	}

	// The generated file must satisfy the schema.
	if _, err := cueutil.Unify(configSchema, []byte(content), "#Config", cueutil.WithFilename("generated.cue")); err != nil {
		t.Fatalf("generated CUE does not validate: %v\n%s", err, content)
	}

	opts := isolated(t)
	writeFile(t, filepath.Join(opts.ConfigDirPath, "config.cue"), content)
	got, _, err := loadWithOptions(context.Background(), opts)
	if err != nil {
		t.Fatalf("loadWithOptions() error = %v", err)
	}
	if *got != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestLocate(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	path, err := Locate(opts)
	if err != nil || path != "" {
		t.Fatalf("Locate() = %q, %v; want empty", path, err)
	}

	want := filepath.Join(opts.ConfigDirPath, "config.cue")
	writeFile(t, want, "")
	if path, _ := Locate(opts); path != want {
		t.Errorf("Locate() = %q, want %q", path, want)
	}
}

func TestProvider_Load(t *testing.T) {
	t.Parallel()

	cfg, err := NewProvider().Load(context.Background(), isolated(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tools.SevenZip != DefaultSevenZip {
		t.Errorf("SevenZip = %q", cfg.Tools.SevenZip)
	}

	opts := isolated(t)
	opts.ConfigFilePath = filepath.Join(t.TempDir(), "absent.cue")
	if _, err := NewProvider().Load(context.Background(), opts); err == nil {
		t.Error("Load() with a missing forced path should fail")
	}
}
