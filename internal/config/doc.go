// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/romextract/config.cue (or the XDG equivalent on Linux,
// ~/Library/Application Support/romextract/config.cue on macOS, %APPDATA%\romextract\config.cue
// on Windows), falling back to ./config.cue. Every key can be overridden from the environment
// with the ROMEXTRACT_ prefix, directly or through a .env file.
//
// Files are validated against the embedded CUE schema (config_schema.cue); the decoded values
// are then checked by Config.Validate.
package config
