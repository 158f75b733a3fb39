package main

import (
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the sync queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue depth by status",
	RunE:  runQueueStats,
}

func init() {
	queueCmd.AddCommand(queueStatsCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.shutdown()

	stats, err := r.app.Queue.Stats()
	if err != nil {
		return err
	}
	return printJSON(stats)
}
