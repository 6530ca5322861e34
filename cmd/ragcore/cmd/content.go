package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcore/internal/bootstrap"
	"github.com/Aman-CERP/ragcore/internal/output"
	"github.com/Aman-CERP/ragcore/internal/validation"
)

func newContentCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect content items stored alongside the corpus",
	}
	cmd.AddCommand(newContentGetCmd(configDir))
	return cmd
}

func newContentGetCmd(configDir *string) *cobra.Command {
	var base64Out bool

	cmd := &cobra.Command{
		Use:   "get <content-id>",
		Short: "Resolve a content item to its path (or base64-encoded bytes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContentGet(cmd, *configDir, args[0], base64Out)
		},
	}
	cmd.Flags().BoolVar(&base64Out, "base64", false, "print base64-encoded bytes instead of a path")
	return cmd
}

func runContentGet(cmd *cobra.Command, configDir, contentID string, base64Out bool) error {
	if err := validation.ContentID(contentID); err != nil {
		return err
	}

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

	item, err := handle.Store.GetContentItem(ctx, contentID)
	if err != nil {
		return err
	}

	if base64Out {
		data, err := handle.Content.GetBase64(item.StoragePath)
		if err != nil {
			return err
		}
		out.Code(data)
		return nil
	}

	path, err := handle.Content.GetFile(item.StoragePath)
	if err != nil {
		return err
	}
	out.Statusf("", "%s  %s  %s (%d bytes)", item.ID, item.MimeType, path, item.FileSize)
	return nil
}
