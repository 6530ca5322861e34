package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcore/internal/bootstrap"
	"github.com/Aman-CERP/ragcore/internal/ingest"
	"github.com/Aman-CERP/ragcore/internal/output"
	"github.com/Aman-CERP/ragcore/internal/store"
	"github.com/Aman-CERP/ragcore/internal/validation"
)

func newIngestCmd(configDir *string) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a file or directory into the corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, *configDir, args[0], mode)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "embedding mode for first ingest: text or multimodal (defaults to config)")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, configDir, path, mode string) error {
	if err := validation.SourcePath(path); err != nil {
		return err
	}
	if err := validation.Mode(mode); err != nil {
		return err
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if mode != "" {
		cfg.Embed.Mode = mode
	}

	handle, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer handle.Close(ctx)

	out := output.New(cmd.OutOrStdout())

	src, err := resolveSource(path)
	if err != nil {
		return err
	}

	requested := store.SystemInfo{}
	if mode != "" {
		requested.Mode = store.Mode(mode)
	} else if info, err := handle.Store.GetSystemInfo(ctx); err == nil && info == nil {
		requested.Mode = store.Mode(cfg.Embed.Mode)
	}

	stats, err := handle.Ingest.Ingest(ctx, src, requested)
	if err != nil {
		return err
	}

	out.Successf("ingested %d document(s), %d chunk(s) embedded, %d skipped",
		stats.DocumentsProcessed, stats.ChunksEmbedded, stats.Skipped)
	for _, reason := range stats.SkippedReasons {
		out.Warning(reason)
	}
	return nil
}

func resolveSource(path string) (ingest.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ingest.Source{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	if info.IsDir() {
		return ingest.Source{Kind: ingest.SourceDir, Path: path}, nil
	}
	return ingest.Source{Kind: ingest.SourceFile, Path: path}, nil
}
