package cmd

import (
	"fmt"

	"mimic/internal/logger"
	"mimic/internal/model"
	"mimic/internal/repository"
	"mimic/internal/syncer/local"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy every configured pair once",
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := cfg.Specs()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		repo := repository.NewHistoryRepository()

		var copied, failed, skipped int
		for _, spec := range specs {
			logger.Log.Info("starting full sync",
				zap.String("src", spec.WatchRoot),
				zap.String("dst", spec.DestRoot))

			results, err := local.FullSync(spec, local.Ops{})
			if err != nil {
				return err
			}

			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					logger.Log.Error("mirror failed",
						zap.String("src", r.SrcPath),
						zap.String("dst", r.DstPath),
						zap.Error(r.Err))
				case r.Op == model.OpSkip:
					skipped++
					continue
				default:
					copied++
				}

				if err := repo.Save(r, spec.WatchRoot); err != nil {
					logger.Log.Warn("failed to save history",
						zap.Error(err))
				}
			}
		}

		fmt.Printf("done: %d copied, %d failed, %d skipped\n", copied, failed, skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
