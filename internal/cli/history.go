package cli

import (
	"github.com/spf13/cobra"

	"stock-price-alerts/internal/app"
)

var (
	historyLimit       int
	historyStats       bool
	historyChangeHours int
)

var historyCmd = &cobra.Command{
	Use:   "history SYMBOL",
	Short: "Show recorded prices for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(app.HistoryOptions{
			Symbol:      args[0],
			Limit:       historyLimit,
			Stats:       historyStats,
			ChangeHours: historyChangeHours,
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "Number of most recent records to show")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Print min/max/average over all retained records")
	historyCmd.Flags().IntVar(&historyChangeHours, "change-hours", 0, "Print the price change over this many hours")
}
