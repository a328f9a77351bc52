package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func correctCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct [accountId] [amount]",
		Short: "Publish a manual CREDIT correction",
		Long: `Publishes a MANUAL- correction that credits the account. There is no
manual debit: an overstated shadow balance is corrected by drift-check.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, false, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ev, err := a.Corrections.ManualCorrection(ctx, args[0], amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s CREDIT %s to %s\n", ev.EventID, ev.Amount, ev.AccountID)
			return nil
		},
	}
}
