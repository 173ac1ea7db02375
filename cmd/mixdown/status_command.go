package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type daemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	QueueDBPath  string `json:"queue_db_path"`
	BlobDBPath   string `json:"blob_db_path"`
	LockFilePath string `json:"lock_file_path"`
	Channels     map[string]struct {
		Ready   int `json:"ready"`
		Unacked int `json:"unacked"`
	} `json:"channels"`
	BlobCount int `json:"blob_count"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var status daemonStatus
			if err := ctx.do(http.MethodGet, "/api/status", nil, "", &status); err != nil {
				fmt.Fprintf(out, "%s %v\n", styleState(false), err)
				return nil
			}

			fmt.Fprintf(out, "%s pid %d\n", styleState(status.Running), status.PID)
			fmt.Fprintf(out, "Queue DB:  %s\n", status.QueueDBPath)
			fmt.Fprintf(out, "Blob DB:   %s\n", status.BlobDBPath)
			fmt.Fprintf(out, "Lock file: %s\n", status.LockFilePath)
			fmt.Fprintf(out, "Blobs:     %d\n", status.BlobCount)

			names := make([]string, 0, len(status.Channels))
			for name := range status.Channels {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				stats := status.Channels[name]
				fmt.Fprintf(out, "Channel %s: %d ready, %d in flight\n", name, stats.Ready, stats.Unacked)
			}
			return nil
		},
	}
}

func styleState(running bool) string {
	label := "stopped"
	color := text.FgRed
	if running {
		label = "running"
		color = text.FgGreen
	}
	if !stdoutIsTerminal() {
		return label + ":"
	}
	return color.Sprint(label) + ":"
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
