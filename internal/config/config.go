// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/android-llm-paper/android-llm-paper/internal/cueutil"
	"github.com/android-llm-paper/android-llm-paper/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "romextract"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides, e.g. ROMEXTRACT_LOG_LEVEL.
	EnvPrefix = "ROMEXTRACT"
	// DotEnvFile is the dotenv file read from the working directory.
	DotEnvFile = ".env"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the romextract configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// FilePath returns the config file location inside dir, or inside ConfigDir
// when dir is empty.
func FilePath(dir string) (string, error) {
	cfgDir, err := configDirWithOverride(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

// defaultValues flattens cfg into the viper keys it sets.
func defaultValues(cfg *Config) map[string]any {
	return map[string]any{
		"output.rom_dir":      string(cfg.Output.RomDir),
		"output.base_rom_dir": string(cfg.Output.BaseRomDir),
		"remote.base_url":     string(cfg.Remote.BaseURL),
		"remote.timeout":      int(cfg.Remote.Timeout),
		"remote.max_attempts": int(cfg.Remote.MaxAttempts),
		"remote.user_agent":   cfg.Remote.UserAgent,
		"mirror.enabled":      cfg.Mirror.Enabled,
		"mirror.endpoint":     cfg.Mirror.Endpoint,
		"mirror.bucket":       cfg.Mirror.Bucket,
		"mirror.prefix":       cfg.Mirror.Prefix,
		"mirror.access_key":   cfg.Mirror.AccessKey,
		"mirror.secret_key":   cfg.Mirror.SecretKey,
		"mirror.region":       cfg.Mirror.Region,
		"mirror.use_ssl":      cfg.Mirror.UseSSL,
		"tools.seven_zip":     string(cfg.Tools.SevenZip),
		"cache.blob_entries":  int(cfg.Cache.BlobEntries),
		"log.level":           string(cfg.Log.Level),
		"log.format":          string(cfg.Log.Format),
	}
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	return slices.Sorted(maps.Keys(defaultValues(DefaultConfig())))
}

// EnvName returns the environment variable overriding key, e.g.
// "mirror.access_key" -> "ROMEXTRACT_MIRROR_ACCESS_KEY".
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. Precedence, highest first: process environment,
// dotenv file, config file, defaults.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	for key, value := range defaultValues(DefaultConfig()) {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath, err := resolveConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("See 'romextract config --help' for configuration options").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	if opts.DotEnvPath != "" {
		if err := applyDotEnv(v, opts.DotEnvPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load environment file").
				WithResource(opts.DotEnvPath).
				WithSuggestion("Use KEY=value lines, e.g. ROMEXTRACT_LOG_LEVEL=debug").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check environment overrides with the " + EnvPrefix + "_ prefix").
			WithSuggestion("Run 'romextract config show' to see the effective values").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// resolveConfigFile picks the config file: an explicit path (which must
// exist), then the config directory, then the working directory. An empty
// result means defaults only.
func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'romextract config show' to see default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cuePath, err := FilePath(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	if fileExists(cuePath) {
		return cuePath, nil
	}

	localCuePath := ConfigFileName + "." + ConfigFileExt
	if opts.WorkDir != "" {
		localCuePath = filepath.Join(opts.WorkDir, localCuePath)
	}
	if fileExists(localCuePath) {
		return localCuePath, nil
	}
	return "", nil
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// Viper. Fields are optional, so values need not be concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Unify(configSchema, data, "#Config",
		cueutil.WithConcrete(false),
		cueutil.WithFilename(path),
	)
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge keeps defaults for unset keys and env overrides on top.
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// applyDotEnv sets known keys from a dotenv file. Variables already present
// in the process environment win. A missing file is not an error.
func applyDotEnv(v *viper.Viper, path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, key := range Keys() {
		name := EnvName(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if value, ok := values[name]; ok {
			v.Set(key, value)
		}
	}
	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file into dir (ConfigDir when
// empty) unless one exists. It returns the file path.
func CreateDefaultConfig(dir string) (string, error) {
	cfgPath, err := FilePath(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, nil
}

// GenerateCUE generates a CUE representation of the configuration.
// Credentials are never written; set them through the environment.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// romextract configuration file\n")
	sb.WriteString("// Mirror credentials are read from " + EnvName("mirror.access_key") + " and " + EnvName("mirror.secret_key") + ".\n\n")

	sb.WriteString("output: {\n")
	fmt.Fprintf(&sb, "\trom_dir:      %q\n", cfg.Output.RomDir)
	fmt.Fprintf(&sb, "\tbase_rom_dir: %q\n", cfg.Output.BaseRomDir)
	sb.WriteString("}\n")

	sb.WriteString("\nremote: {\n")
	fmt.Fprintf(&sb, "\tbase_url:     %q\n", cfg.Remote.BaseURL)
	fmt.Fprintf(&sb, "\ttimeout:      %d\n", cfg.Remote.Timeout)
	fmt.Fprintf(&sb, "\tmax_attempts: %d\n", cfg.Remote.MaxAttempts)
	if cfg.Remote.UserAgent != "" {
		fmt.Fprintf(&sb, "\tuser_agent:   %q\n", cfg.Remote.UserAgent)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nmirror: {\n")
	fmt.Fprintf(&sb, "\tenabled:  %v\n", cfg.Mirror.Enabled)
	if cfg.Mirror.Endpoint != "" {
		fmt.Fprintf(&sb, "\tendpoint: %q\n", cfg.Mirror.Endpoint)
	}
	if cfg.Mirror.Bucket != "" {
		fmt.Fprintf(&sb, "\tbucket:   %q\n", cfg.Mirror.Bucket)
	}
	fmt.Fprintf(&sb, "\tprefix:   %q\n", cfg.Mirror.Prefix)
	if cfg.Mirror.Region != "" {
		fmt.Fprintf(&sb, "\tregion:   %q\n", cfg.Mirror.Region)
	}
	fmt.Fprintf(&sb, "\tuse_ssl:  %v\n", cfg.Mirror.UseSSL)
	sb.WriteString("}\n")

	sb.WriteString("\ntools: {\n")
	fmt.Fprintf(&sb, "\tseven_zip: %q\n", cfg.Tools.SevenZip)
	sb.WriteString("}\n")

	sb.WriteString("\ncache: {\n")
	fmt.Fprintf(&sb, "\tblob_entries: %d\n", cfg.Cache.BlobEntries)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel:  %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	return sb.String()
}
