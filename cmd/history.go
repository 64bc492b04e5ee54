package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mimic/internal/model"

	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent mirror operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := fmt.Sprintf("%s?n=%d", daemonURL("/history"), historyN)
		resp, err := http.Get(url)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode != http.StatusOK {
			var body map[string]string
			_ = json.NewDecoder(resp.Body).Decode(&body)
			return fmt.Errorf("history request failed: %s", body["error"])
		}

		var histories []model.History
		if err := json.NewDecoder(resp.Body).Decode(&histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			fmt.Printf("%s [%s] %-6s %s -> %s\n",
				status,
				h.MirroredAt.Format("2006-01-02 15:04:05"),
				h.Op,
				h.SrcPath,
				h.DstPath,
			)
			if h.ErrMsg != "" {
				fmt.Printf("    %s\n", h.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	rootCmd.AddCommand(historyCmd)
}
