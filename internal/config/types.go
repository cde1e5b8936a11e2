// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/android-llm-paper/android-llm-paper/internal/logging"
)

const (
	// DefaultRomDir is where remote runs write <oem>/<product>/<branch>/out.
	DefaultRomDir = "rom"
	// DefaultBaseRomDir is where image runs write <brand>/<product>/<build id>.
	DefaultBaseRomDir = "base_rom"
	// DefaultBaseURL is the public dump host.
	DefaultBaseURL = "https://dumps.tadiphone.dev"
	// DefaultTimeoutSeconds bounds one HTTP request.
	DefaultTimeoutSeconds = 600
	// DefaultMaxAttempts is the number of tries per remote request.
	DefaultMaxAttempts = 3
	// DefaultMirrorPrefix is the object key prefix of mirrored dumps.
	DefaultMirrorPrefix = "dumps"
	// DefaultSevenZip is the 7-Zip binary looked up on PATH.
	DefaultSevenZip = "7z"
	// DefaultBlobEntries sizes the disk-image blob cache.
	DefaultBlobEntries = 64
)

var (
	// ErrInvalidDirPath is returned when a DirPath value is empty or whitespace-only.
	ErrInvalidDirPath = errors.New("invalid directory path")
	// ErrInvalidBaseURL is returned when a BaseURL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL")
	// ErrInvalidCount is returned when a Count is below its minimum.
	ErrInvalidCount = errors.New("invalid count")
	// ErrInvalidBinaryFilePath is returned when a BinaryFilePath value is empty or whitespace-only.
	ErrInvalidBinaryFilePath = errors.New("invalid binary file path")
	// ErrInvalidMirrorConfig is the sentinel error wrapped by InvalidMirrorConfigError.
	ErrInvalidMirrorConfig = errors.New("invalid mirror config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// DirPath is a filesystem directory path. It must not be blank.
	DirPath string

	// InvalidDirPathError wraps ErrInvalidDirPath.
	InvalidDirPathError struct {
		Field string
		Value DirPath
	}

	// BaseURL is the dump host root, e.g. https://dumps.tadiphone.dev.
	BaseURL string

	// InvalidBaseURLError wraps ErrInvalidBaseURL.
	InvalidBaseURLError struct {
		Value  BaseURL
		Reason string
	}

	// Count is a positive integer setting.
	Count int

	// InvalidCountError wraps ErrInvalidCount.
	InvalidCountError struct {
		Field string
		Value Count
		Min   Count
	}

	// BinaryFilePath is an executable name or path.
	BinaryFilePath string

	// InvalidBinaryFilePathError wraps ErrInvalidBinaryFilePath.
	InvalidBinaryFilePathError struct {
		Value BinaryFilePath
	}

	// InvalidMirrorConfigError is returned when an enabled mirror lacks
	// required settings. It wraps ErrInvalidMirrorConfig.
	InvalidMirrorConfigError struct {
		Missing []string
	}

	// InvalidConfigError collects field-level validation errors and wraps
	// ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// Output configures where extracted artifacts are written.
		Output OutputConfig `json:"output" mapstructure:"output"`
		// Remote configures the dump repository backend.
		Remote RemoteConfig `json:"remote" mapstructure:"remote"`
		// Mirror configures the optional object-store mirror.
		Mirror MirrorConfig `json:"mirror" mapstructure:"mirror"`
		// Tools locates external programs.
		Tools ToolsConfig `json:"tools" mapstructure:"tools"`
		// Cache sizes in-memory caches.
		Cache CacheConfig `json:"cache" mapstructure:"cache"`
		// Log configures the structured logger.
		Log LogConfig `json:"log" mapstructure:"log"`
	}

	// OutputConfig configures the output roots.
	OutputConfig struct {
		RomDir     DirPath `json:"rom_dir" mapstructure:"rom_dir"`
		BaseRomDir DirPath `json:"base_rom_dir" mapstructure:"base_rom_dir"`
	}

	// RemoteConfig configures the remote dump backend.
	// Timeout is the per-request timeout in seconds.
	RemoteConfig struct {
		BaseURL     BaseURL `json:"base_url" mapstructure:"base_url"`
		Timeout     Count   `json:"timeout" mapstructure:"timeout"`
		MaxAttempts Count   `json:"max_attempts" mapstructure:"max_attempts"`
		UserAgent   string  `json:"user_agent" mapstructure:"user_agent"`
	}

	// MirrorConfig configures the S3-compatible mirror.
	MirrorConfig struct {
		Enabled   bool   `json:"enabled" mapstructure:"enabled"`
		Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
		Bucket    string `json:"bucket" mapstructure:"bucket"`
		Prefix    string `json:"prefix" mapstructure:"prefix"`
		AccessKey string `json:"access_key" mapstructure:"access_key"`
		SecretKey string `json:"secret_key" mapstructure:"secret_key"`
		Region    string `json:"region" mapstructure:"region"`
		UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
	}

	// ToolsConfig locates external tools.
	ToolsConfig struct {
		SevenZip BinaryFilePath `json:"seven_zip" mapstructure:"seven_zip"`
	}

	// CacheConfig sizes caches.
	CacheConfig struct {
		// BlobEntries is the number of extracted disk-image files kept in memory.
		BlobEntries Count `json:"blob_entries" mapstructure:"blob_entries"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level  logging.Level  `json:"level" mapstructure:"level"`
		Format logging.Format `json:"format" mapstructure:"format"`
	}
)

// String returns the string representation of the DirPath.
func (p DirPath) String() string { return string(p) }

// Validate rejects blank paths. field names the setting in the error.
func (p DirPath) Validate(field string) error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidDirPathError{Field: field, Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidDirPathError.
func (e *InvalidDirPathError) Error() string {
	return fmt.Sprintf("%s: invalid directory path %q: must be non-empty", e.Field, e.Value)
}

// Unwrap returns ErrInvalidDirPath for errors.Is() compatibility.
func (e *InvalidDirPathError) Unwrap() error { return ErrInvalidDirPath }

// String returns the string representation of the BaseURL.
func (u BaseURL) String() string { return string(u) }

// Validate requires an absolute http or https URL with a host.
func (u BaseURL) Validate() error {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return &InvalidBaseURLError{Value: u, Reason: err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &InvalidBaseURLError{Value: u, Reason: "scheme must be http or https"}
	}
	if parsed.Host == "" {
		return &InvalidBaseURLError{Value: u, Reason: "missing host"}
	}
	return nil
}

// Error implements the error interface for InvalidBaseURLError.
func (e *InvalidBaseURLError) Error() string {
	return fmt.Sprintf("invalid base URL %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidBaseURL for errors.Is() compatibility.
func (e *InvalidBaseURLError) Unwrap() error { return ErrInvalidBaseURL }

// Validate requires c >= minimum.
func (c Count) Validate(field string, minimum Count) error {
	if c < minimum {
		return &InvalidCountError{Field: field, Value: c, Min: minimum}
	}
	return nil
}

// Error implements the error interface for InvalidCountError.
func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("%s: %d is below the minimum of %d", e.Field, e.Value, e.Min)
}

// Unwrap returns ErrInvalidCount for errors.Is() compatibility.
func (e *InvalidCountError) Unwrap() error { return ErrInvalidCount }

// String returns the string representation of the BinaryFilePath.
func (p BinaryFilePath) String() string { return string(p) }

// Validate rejects blank binary paths.
func (p BinaryFilePath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidBinaryFilePathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidBinaryFilePathError.
func (e *InvalidBinaryFilePathError) Error() string {
	return fmt.Sprintf("invalid binary file path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidBinaryFilePath for errors.Is() compatibility.
func (e *InvalidBinaryFilePathError) Unwrap() error { return ErrInvalidBinaryFilePath }

// Validate checks that an enabled mirror names an endpoint, a bucket and
// both credentials. A disabled mirror is always valid.
func (m MirrorConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"mirror.endpoint", m.Endpoint},
		{"mirror.bucket", m.Bucket},
		{"mirror.access_key", m.AccessKey},
		{"mirror.secret_key", m.SecretKey},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &InvalidMirrorConfigError{Missing: missing}
	}
	return nil
}

// Error implements the error interface for InvalidMirrorConfigError.
func (e *InvalidMirrorConfigError) Error() string {
	return fmt.Sprintf("invalid mirror config: enabled but missing %s", strings.Join(e.Missing, ", "))
}

// Unwrap returns ErrInvalidMirrorConfig for errors.Is() compatibility.
func (e *InvalidMirrorConfigError) Unwrap() error { return ErrInvalidMirrorConfig }

// Validate checks every field and returns an *InvalidConfigError listing
// all problems, or nil.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(c.Output.RomDir.Validate("output.rom_dir"))
	add(c.Output.BaseRomDir.Validate("output.base_rom_dir"))
	add(c.Remote.BaseURL.Validate())
	add(c.Remote.Timeout.Validate("remote.timeout", 1))
	add(c.Remote.MaxAttempts.Validate("remote.max_attempts", 1))
	add(c.Mirror.Validate())
	add(c.Tools.SevenZip.Validate())
	add(c.Cache.BlobEntries.Validate("cache.blob_entries", 1))
	add(c.Log.Level.Validate())
	add(c.Log.Format.Validate())

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %d field error(s): %s", len(e.FieldErrors), strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			RomDir:     DefaultRomDir,
			BaseRomDir: DefaultBaseRomDir,
		},
		Remote: RemoteConfig{
			BaseURL:     DefaultBaseURL,
			Timeout:     DefaultTimeoutSeconds,
			MaxAttempts: DefaultMaxAttempts,
			UserAgent:   "", // Will use the remote client's default if empty
		},
		Mirror: MirrorConfig{
			Enabled: false,
			Prefix:  DefaultMirrorPrefix,
			UseSSL:  true,
		},
		Tools: ToolsConfig{
			SevenZip: DefaultSevenZip,
		},
		Cache: CacheConfig{
			BlobEntries: DefaultBlobEntries,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}
