package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TeamPiccolo/piccolo3-server/internal/conf"
	"github.com/TeamPiccolo/piccolo3-server/internal/logging"
	"github.com/TeamPiccolo/piccolo3-server/internal/resource"
)

// version is set at build time via -ldflags "-X main.version=...",
// mirroring the teacher's cmd/conf buildDate injection.
var version = "dev"

var (
	configPath   string
	printVersion bool
	settings     *conf.Settings
)

// RootCommand builds the server's single cobra command: a CLI flag
// layer over conf.Settings, following the teacher's cmd/root.go
// PersistentPreRunE-does-setup shape, but with one Run body instead of
// a tree of subcommands, since piccolo-server exposes a single
// long-running daemon rather than a family of batch operations.
func RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "piccolo-server",
		Short:        "Piccolo reflectance-spectrometer instrument controller",
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.Flags().BoolVarP(&printVersion, "version", "v", false, "print version and exit")
	root.Flags().StringVar(&configPath, "config", "", "path to an override config.yaml directory")
	root.Flags().String("data-dir", "", "override server.data_dir")
	root.Flags().String("bind", "", "override server.bind")
	root.Flags().Bool("debug", false, "enable debug logging")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if printVersion {
			return nil
		}
		return loadSettings(cmd)
	}

	return root
}

// loadSettings reads conf.Settings from the embedded defaults, an
// optional override file/directory, and environment variables, applies
// CLI flag overrides, validates the result, and initialises logging —
// the same order of precedence the teacher's cmd/root.go/internal/conf
// pair establishes (defaults < file < env < flags).
func loadSettings(cmd *cobra.Command) error {
	paths := conf.DefaultConfigPaths()
	if configPath != "" {
		paths = append([]string{configPath}, paths...)
	}

	s, err := conf.Load(paths)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		s.Server.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("bind"); v != "" {
		s.Server.Bind = v
	}
	if v, _ := cmd.Flags().GetBool("debug"); v {
		s.Debug = true
	}

	if err := s.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	logCfg := s.Logging.ToLoggingConfig()
	if s.Debug {
		logCfg.Level = slog.LevelDebug
	}
	logging.Init(logCfg)

	settings = s
	resource.Version = version
	return nil
}
