package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "submit <video-file>",
		Short: "Upload a video for MP3 conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(args[0])
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open video: %w", err)
			}
			defer file.Close()

			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			part, err := writer.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return fmt.Errorf("build upload: %w", err)
			}
			if _, err := io.Copy(part, file); err != nil {
				return fmt.Errorf("read video: %w", err)
			}
			if err := writer.Close(); err != nil {
				return fmt.Errorf("finalize upload: %w", err)
			}

			base, err := ctx.baseURL()
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodPost, base+"/api/upload", &buf)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("Content-Type", writer.FormDataContentType())
			req.Header.Set("X-Mixdown-User", user)
			if token := ctx.token(); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := ctx.client.Do(req)
			if err != nil {
				return fmt.Errorf("daemon unreachable: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				return apiError(resp)
			}
			var uploaded struct {
				JobID string `json:"job_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted. Job ID: %s\n", uploaded.JobID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Email address to notify when the MP3 is ready")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
