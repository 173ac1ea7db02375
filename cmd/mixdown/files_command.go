package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List stored video and audio files",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Blobs []struct {
					ID        string `json:"id"`
					MediaType string `json:"media_type"`
					Size      int64  `json:"size"`
					CreatedAt string `json:"created_at"`
				} `json:"blobs"`
			}
			if err := ctx.do(http.MethodGet, "/api/blobs", nil, "", &resp); err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Blobs))
			for _, b := range resp.Blobs {
				rows = append(rows, []string{
					b.ID,
					b.MediaType,
					fmt.Sprintf("%d", b.Size),
					b.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Type", "Bytes", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}
