package main

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue inspection and maintenance",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show per-channel message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Channels map[string]struct {
					Ready   int `json:"ready"`
					Unacked int `json:"unacked"`
				} `json:"channels"`
			}
			if err := ctx.do(http.MethodGet, "/api/queue", nil, "", &resp); err != nil {
				return err
			}

			names := make([]string, 0, len(resp.Channels))
			for name := range resp.Channels {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				stats := resp.Channels[name]
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%d", stats.Ready),
					fmt.Sprintf("%d", stats.Unacked),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Channel", "Ready", "Unacked"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every queued message",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Purged int64 `json:"purged"`
			}
			if err := ctx.do(http.MethodDelete, "/api/queue", nil, "", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d messages\n", resp.Purged)
			return nil
		},
	}
}
