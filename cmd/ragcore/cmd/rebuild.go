package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcore/internal/bootstrap"
	"github.com/Aman-CERP/ragcore/internal/output"
)

func newRebuildCmd(configDir *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Delete the store and vector index so the corpus can be re-ingested from scratch",
		Long: `rebuild deletes both the relational store and the vector index.
It is the only way to change the embedding mode or model once a corpus
has been committed. Data is not recoverable after this runs — re-ingest
the source corpus afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("this deletes the store and vector index; re-run with --yes to confirm")
			}
			return runRebuild(cmd, *configDir)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive rebuild")

	return cmd
}

func runRebuild(cmd *cobra.Command, configDir string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := output.New(cmd.OutOrStdout())

	if err := bootstrap.Rebuild(cmd.Context(), cfg); err != nil {
		return err
	}

	out.Success("store and vector index removed; re-ingest to rebuild the corpus")
	return nil
}
