package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mimic/internal/daemon"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result daemon.StatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		fmt.Printf("uptime: %s\n", time.Since(result.StartedAt).Round(time.Second))

		if len(result.Workers) == 0 {
			fmt.Println("no active pairs")
			return nil
		}

		fmt.Printf("%-9s %-30s %-30s %-8s %-7s %-7s %-7s %-6s %s\n",
			"STATUS", "SRC", "DST", "MIRRORED", "FAILED", "SKIPPED", "PENDING", "LOST", "LAST MIRROR")

		for _, snap := range result.Workers {
			lastMirror := "-"
			if snap.LastMirror != nil {
				lastMirror = snap.LastMirror.Format("2006-01-02 15:04:05")
			}

			fmt.Printf("%-9s %-30s %-30s %-8d %-7d %-7d %-7d %-6d %s\n",
				snap.Status, snap.WatchRoot, snap.DestRoot,
				snap.Mirrored, snap.Failed, snap.Skipped, snap.Pending,
				snap.Overflows+snap.Inaccessible, lastMirror)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
