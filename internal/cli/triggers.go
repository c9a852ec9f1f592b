package cli

import (
	"time"

	"github.com/spf13/cobra"

	"stock-price-alerts/internal/app"
)

var (
	triggersLimit int
	triggersPrune time.Duration
)

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "List recent alert triggers from the database audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Triggers(cmd.Context(), app.TriggersOptions{
			Limit:          triggersLimit,
			PruneOlderThan: triggersPrune,
		})
	},
}

func init() {
	triggersCmd.Flags().IntVar(&triggersLimit, "limit", 20, "Number of rows to display")
	triggersCmd.Flags().DurationVar(&triggersPrune, "prune-older-than", 0, "Delete audit rows recorded before now minus this duration (e.g. 720h)")
}
