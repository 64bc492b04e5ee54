package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mimic/internal/daemon"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(daemonURL("/stop"), "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result daemon.StopResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode stop response: %w", err)
		}

		fmt.Printf("mimic daemon %s, waiting on %d mirror pair(s) to finish\n", result.Status, result.Workers)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
