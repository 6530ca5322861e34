package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcore/internal/bootstrap"
	"github.com/Aman-CERP/ragcore/internal/output"
	"github.com/Aman-CERP/ragcore/internal/search"
	"github.com/Aman-CERP/ragcore/internal/validation"
)

func newSearchCmd(configDir *string) *cobra.Command {
	var (
		limit  int
		rerank bool
		filter string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the corpus for chunks semantically similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, *configDir, args[0], limit, rerank, filter)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", search.DefaultTopK, "maximum number of results")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "rerank candidates with the configured reranker")
	cmd.Flags().StringVar(&filter, "filter", string(search.FilterAll), "content type filter: all, text, or image")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, configDir, query string, limit int, rerank bool, filter string) error {
	if err := validation.Query(query); err != nil {
		return err
	}
	if err := validation.TopK(limit); err != nil {
		return err
	}
	if err := validation.ContentTypeFilter(filter); err != nil {
		return err
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	handle, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer handle.Close(ctx)

	out := output.New(cmd.OutOrStdout())

	resp, err := handle.Search.Search(ctx, query, search.Options{
		TopK:              limit,
		Rerank:            rerank,
		ContentTypeFilter: search.ContentTypeFilter(filter),
	})
	if err != nil {
		return err
	}

	for _, w := range resp.Warnings {
		out.Warning(string(w))
	}

	if len(resp.Results) == 0 {
		out.Status("", fmt.Sprintf("no results for %q", query))
		return nil
	}

	out.Statusf("🔍", "%d result(s) for %q:", len(resp.Results), query)
	for i, r := range resp.Results {
		out.Statusf("", "%2d. [%.4f] doc#%d chunk#%d (%s)", i+1, r.Score, r.Chunk.DocumentID, r.Chunk.ID, r.Chunk.ContentType)
		out.Code(r.Chunk.Content)
	}
	return nil
}
