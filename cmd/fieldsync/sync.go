package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drive the sync engine directly",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run the retry sweep once, starting a sync pass if a retried item is eligible",
	RunE:  runSyncNow,
}

func init() {
	syncCmd.AddCommand(syncNowCmd)
}

func runSyncNow(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.shutdown()

	ctx := context.Background()
	r.engine.ManualRetry(ctx)

	stats, err := r.app.Queue.Stats()
	if err != nil {
		return err
	}
	log.Info().Interface("queue", stats).Msg("sync pass complete")
	return printJSON(stats)
}
