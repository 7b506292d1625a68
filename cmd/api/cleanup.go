package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridesplit/ridesplit/internal/cleanup"
	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/realtime"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Retire departed groups once and exit",
	Long: `Runs a single teardown sweep: every group whose departure is older than
GROUP_RETENTION is deleted together with its messages, payments and chat
stream. Useful from cron when the API server runs without its worker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repo, cacheClient, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()
		defer cacheClient.Close()

		recorder := metrics.NewNoop()
		hub := realtime.NewHub(cacheClient.Client(), logger, recorder)
		worker := cleanup.NewWorker(repo, hub, logger, recorder, cfg.CleanupInterval, cfg.GroupRetention)

		n, err := worker.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}

		logger.Info("cleanup complete", "groups_retired", n, "retention", cfg.GroupRetention)
		return nil
	},
}
