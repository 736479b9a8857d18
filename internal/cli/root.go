// Package cli provides the command-line interface for makereader.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ppiankov/makereader/internal/config"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configFlag string
	configDir  string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:               "makereader",
	Short:             "Show the newest posts from the Make WordPress blogs",
	Long:              "makereader queries every configured Make WordPress team blog, caches each response, and prints the newest posts across all of them.",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "makereader %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config directory (default $"+config.DirEnv+" or "+config.DefaultConfigDir+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(cacheCmd)
}

// setup loads .env files, resolves the config dir, and installs the default logger.
func setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(config.DefaultEnvFile); err != nil {
		return err
	}
	configDir = config.Dir(configFlag)
	if err := config.LoadEnv(filepath.Join(configDir, config.DefaultEnvFile)); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q (want text or json)", format)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
