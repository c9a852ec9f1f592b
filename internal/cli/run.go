package cli

import (
	"github.com/spf13/cobra"
)

var (
	runInterval  int
	runImmediate bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitor and poll prices until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if cmd.Flags().Changed("interval") {
			a.Config.Monitor.IntervalMinutes = runInterval
		}
		if runImmediate {
			a.Config.Monitor.RunOnStart = true
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().IntVar(&runInterval, "interval", 0, "Poll interval in minutes (minimum 1, overrides config)")
	runCmd.Flags().BoolVar(&runImmediate, "now", false, "Run the first check immediately instead of after one interval")
}
