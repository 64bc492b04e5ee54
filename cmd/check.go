package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the mirror pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := cfg.Specs()
		if err != nil {
			return fmt.Errorf("invalid configuration:\n%w", err)
		}

		for _, spec := range specs {
			fmt.Printf("%s -> %s\n", spec.WatchRoot, spec.DestRoot)
		}
		if len(cfg.ExcludedPaths) > 0 {
			fmt.Printf("excluded: %s\n", strings.Join(cfg.ExcludedPaths, ", "))
		}

		fmt.Println("configuration ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
