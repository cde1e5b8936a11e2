// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/android-llm-paper/android-llm-paper/internal/config"
)

// redacted replaces secrets in `config show`.
const redacted = "********"

// newConfigCommand creates the `romextract config` command tree.
func newConfigCommand(app *App, flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage romextract configuration",
		Long: `Manage romextract configuration.

Configuration is stored in:
  - Linux: ~/.config/romextract/config.cue
  - macOS: ~/Library/Application Support/romextract/config.cue
  - Windows: %APPDATA%\romextract\config.cue

Every key can be overridden with an environment variable, for example
ROMEXTRACT_LOG_LEVEL=debug or ROMEXTRACT_MIRROR_SECRET_KEY=..., set
directly or in a .env file in the working directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfig(cmd.Context(), flags)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.initConfig()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.showConfigPath(flags)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), flags.loadOptions())
			if err != nil {
				app.reportError(err, flags.verbose)
				return &ExitError{Code: ExitFailure, Err: err}
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func (a *App) showConfig(ctx context.Context, flags *rootFlags) error {
	cfg, err := a.Config.Load(ctx, flags.loadOptions())
	if err != nil {
		a.reportError(err, flags.verbose)
		return &ExitError{Code: ExitFailure, Err: err}
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(a.stdout)

	source := SubtitleStyle.Render("(using defaults)")
	if cfgPath, err := config.Locate(flags.loadOptions()); err == nil && cfgPath != "" {
		source = cfgPath
	}
	fmt.Fprintf(a.stdout, "%s: %s\n\n", KeyStyle.Render("Config file"), source)

	section := ""
	for _, row := range configRows(cfg) {
		group, name, _ := strings.Cut(row.key, ".")
		if group != section {
			if section != "" {
				fmt.Fprintln(a.stdout)
			}
			fmt.Fprintf(a.stdout, "%s:\n", KeyStyle.Render(group))
			section = group
		}
		value := row.value
		if value == "" {
			value = SubtitleStyle.Render("(unset)")
		} else {
			value = SuccessStyle.Render(value)
		}
		fmt.Fprintf(a.stdout, "  %s: %s  %s\n", name, value, SubtitleStyle.Render(config.EnvName(row.key)))
	}

	return nil
}

type configRow struct {
	key   string
	value string
}

// configRows lists the effective values in display order with secrets masked.
func configRows(cfg *config.Config) []configRow {
	secret := func(v string) string {
		if v == "" {
			return ""
		}
		return redacted
	}
	return []configRow{
		{"output.rom_dir", cfg.Output.RomDir.String()},
		{"output.base_rom_dir", cfg.Output.BaseRomDir.String()},
		{"remote.base_url", cfg.Remote.BaseURL.String()},
		{"remote.timeout", fmt.Sprintf("%ds", cfg.Remote.Timeout)},
		{"remote.max_attempts", fmt.Sprint(int(cfg.Remote.MaxAttempts))},
		{"remote.user_agent", cfg.Remote.UserAgent},
		{"mirror.enabled", fmt.Sprint(cfg.Mirror.Enabled)},
		{"mirror.endpoint", cfg.Mirror.Endpoint},
		{"mirror.bucket", cfg.Mirror.Bucket},
		{"mirror.prefix", cfg.Mirror.Prefix},
		{"mirror.access_key", secret(cfg.Mirror.AccessKey)},
		{"mirror.secret_key", secret(cfg.Mirror.SecretKey)},
		{"mirror.region", cfg.Mirror.Region},
		{"mirror.use_ssl", fmt.Sprint(cfg.Mirror.UseSSL)},
		{"tools.seven_zip", cfg.Tools.SevenZip.String()},
		{"cache.blob_entries", fmt.Sprint(int(cfg.Cache.BlobEntries))},
		{"log.level", string(cfg.Log.Level)},
		{"log.format", string(cfg.Log.Format)},
	}
}

func (a *App) initConfig() error {
	cfgPath, err := config.CreateDefaultConfig("")
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("failed to create config: %w", err)}
	}

	fmt.Fprintf(a.stdout, "%s Configuration at %s\n", SuccessStyle.Render("✓"), cfgPath)
	return nil
}

func (a *App) showConfigPath(flags *rootFlags) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	fmt.Fprintf(a.stdout, "Config directory: %s\n", cfgDir)
	cfgPath, err := config.Locate(flags.loadOptions())
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}
	if cfgPath == "" {
		cfgPath, _ = config.FilePath("")
		fmt.Fprintf(a.stdout, "Config file: %s %s\n", cfgPath, SubtitleStyle.Render("(not created)"))
		return nil
	}
	fmt.Fprintf(a.stdout, "Config file: %s\n", cfgPath)
	return nil
}
