package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"stock-price-alerts/internal/app"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage price alerts",
}

var alertsAddCmd = &cobra.Command{
	Use:     "add SYMBOL above|below THRESHOLD",
	Short:   "Create an alert",
	Example: "  stockwatch alerts add AAPL above 200",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold %q: %w", args[2], err)
		}
		_, err = getApp().AddAlert(app.AddAlertOptions{
			Symbol:    args[0],
			Kind:      args[1],
			Threshold: &threshold,
		})
		return err
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts()
	},
}

var alertsRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Delete an alert",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RemoveAlert(args[0])
	},
}

var alertsEnableCmd = &cobra.Command{
	Use:   "enable ID",
	Short: "Re-activate an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetAlertActive(args[0], true)
	},
}

var alertsDisableCmd = &cobra.Command{
	Use:   "disable ID",
	Short: "Deactivate an alert without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SetAlertActive(args[0], false)
	},
}

func init() {
	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsRemoveCmd, alertsEnableCmd, alertsDisableCmd)
}
