package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulatePrice float64

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert SYMBOL",
	Short: "Evaluate stored alerts against a given price and send notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}
		return getApp().SimulateAlert(cmd.Context(), args[0], simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Price to evaluate the alerts against")
}
