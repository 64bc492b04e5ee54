package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"mimic/internal/autostart"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the daemon to start on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		configPath := cfgFile
		if configPath != "" {
			if configPath, err = filepath.Abs(configPath); err != nil {
				return err
			}
		}

		as := autostart.New()
		if err := as.Install(autostart.CommandLine(execPath, configPath)); err != nil {
			return err
		}

		fmt.Println("mimic daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
