package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a stored file by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			base, err := ctx.baseURL()
			if err != nil {
				return err
			}

			req, err := http.NewRequest(http.MethodGet, base+"/api/download/"+id, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			if token := ctx.token(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := ctx.client.Do(req)
			if err != nil {
				return fmt.Errorf("daemon unreachable: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("no file with id %s", id)
			}
			if resp.StatusCode >= 300 {
				return apiError(resp)
			}

			target := strings.TrimSpace(output)
			if target == "" {
				target = id
				if resp.Header.Get("Content-Type") == "audio/mpeg" {
					target += ".mp3"
				}
			}
			file, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			defer file.Close()
			written, err := io.Copy(file, resp.Body)
			if err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", written, target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (defaults to <file-id>.mp3)")
	return cmd
}
