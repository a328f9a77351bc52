package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [accountId]",
		Short: "Print the shadow balance, watermark and running minimum of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, true, false)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Projector.ShadowBalance(ctx, args[0])
			if err != nil {
				return err
			}
			minimum, err := a.Projector.MinimumRunningBalance(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"accountId":      view.AccountID,
				"balance":        view.Balance,
				"lastEventId":    view.LastEventID,
				"minimumBalance": minimum,
			})
		},
	}
}
