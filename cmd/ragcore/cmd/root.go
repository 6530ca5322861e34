// Package cmd provides the CLI commands for ragcore.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcore/internal/config"
	"github.com/Aman-CERP/ragcore/internal/logging"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragcore CLI.
func NewRootCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "ragcore",
		Short: "Local-first semantic retrieval engine",
		Long: `ragcore indexes a corpus of text (or text and images, in
multimodal mode) and serves nearest-neighbour semantic search over it.

It runs entirely locally: the relational store, vector index, and
content-addressed blob store all live under .ragcore in the working
directory, with embedding and reranking delegated to local model
servers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing ragcore.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "force debug-level logging regardless of ragcore.yaml")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		return startLogging(configDir)
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if loggingCleanup != nil {
			loggingCleanup()
		}
		return nil
	}

	cmd.AddCommand(newIngestCmd(&configDir))
	cmd.AddCommand(newSearchCmd(&configDir))
	cmd.AddCommand(newRebuildCmd(&configDir))
	cmd.AddCommand(newStatsCmd(&configDir))
	cmd.AddCommand(newContentCmd(&configDir))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func loadConfig(configDir string) (*config.Config, error) {
	return config.Load(configDir)
}

// startLogging initializes the ambient slog-based logging stack from the
// resolved config's log section before any verb runs. A config load
// failure here isn't fatal to logging setup itself — the verb that
// actually needs the config will surface the real error — so this falls
// back to built-in defaults (info level, logging.DefaultLogPath(), 10 MB
// files, 5 kept, no stderr mirror) rather than aborting the command.
func startLogging(configDir string) error {
	logCfg := logging.Config{
		Level:         "info",
		FilePath:      logging.DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	if cfg, err := config.Load(configDir); err == nil {
		logCfg.Level = cfg.Log.Level
		logCfg.FilePath = cfg.Log.FilePath
		logCfg.MaxSizeMB = cfg.Log.MaxSizeMB
		logCfg.MaxFiles = cfg.Log.MaxBackups
		logCfg.WriteToStderr = cfg.Log.MirrorStderr
	}

	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("logging initialized", slog.String("log_file", logCfg.FilePath), slog.String("level", logCfg.Level))
	return nil
}
