package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcore/internal/bootstrap"
	"github.com/Aman-CERP/ragcore/internal/output"
)

func newStatsCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus and commitment statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, *configDir)
		},
	}
	return cmd
}

func runStats(cmd *cobra.Command, configDir string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	handle, err := bootstrap.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer handle.Close(cmd.Context())

	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	stats, err := handle.Store.GetStats(ctx)
	if err != nil {
		return err
	}

	info, err := handle.Store.GetSystemInfo(ctx)
	if err != nil {
		return err
	}
	if info != nil {
		stats.Mode = info.Mode
		stats.ModelName = info.ModelName
		stats.ModelDimensions = info.ModelDimensions
	}
	stats.RerankerLoaded = handle.Reranker.Available(ctx)

	out.Statusf("", "documents: %d", stats.TotalDocuments)
	out.Statusf("", "chunks: %d", stats.TotalChunks)
	for ct, count := range stats.ContentTypeDistribution {
		out.Statusf("", "  %s: %d", ct, count)
	}
	if info == nil {
		out.Status("", "no commitment yet (store is empty)")
		return nil
	}
	out.Statusf("", "mode: %s", stats.Mode)
	out.Statusf("", "model: %s (%d dims)", stats.ModelName, stats.ModelDimensions)
	out.Statusf("", "reranker available: %t", stats.RerankerLoaded)
	return nil
}
