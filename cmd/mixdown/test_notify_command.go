package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	var recipient string

	cmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the configured transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/notify/test"
			if trimmed := strings.TrimSpace(recipient); trimmed != "" {
				path += "?recipient=" + url.QueryEscape(trimmed)
			}
			var resp struct {
				Result string `json:"result"`
			}
			if err := ctx.do(http.MethodPost, path, nil, "", &resp); err != nil {
				return err
			}
			if resp.Result == "" {
				resp.Result = "test notification sent"
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&recipient, "recipient", "r", "", "Recipient address for the test message")
	return cmd
}
