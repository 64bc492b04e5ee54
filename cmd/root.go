package cmd

import (
	"fmt"
	"os"

	"mimic/internal/config"
	"mimic/internal/db"
	"mimic/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	cfgFile string
	debug   bool
)

// commands that open the history database themselves
var dbCmds = map[string]bool{
	"watch": true, "sync": true,
}

var rootCmd = &cobra.Command{
	Use:          "mimic",
	Short:        "Mirror directory trees as they change",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		logger.Init(debug, cfg.LogFile)

		if dbCmds[cmd.Name()] {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = db.Close()
		logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.mimic/config.yaml)")
}
