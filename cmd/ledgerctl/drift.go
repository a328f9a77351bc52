package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sheikh-saqib/shadow-ledger/internal/drift"
	"github.com/sheikh-saqib/shadow-ledger/internal/models"
)

// reportedBalance is one line of a CBS export. Balances are read as text
// so no float ever touches them.
type reportedBalance struct {
	AccountID       string `yaml:"accountId"`
	ReportedBalance string `yaml:"reportedBalance"`
}

func driftCheckCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "drift-check",
		Short: "Compare a CBS balance export with the shadow ledger and publish corrections",
		Long: `Reads a YAML or JSON list of {accountId, reportedBalance} and checks
each account independently. Accounts the shadow ledger has never seen are
skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			balances, err := readBalances(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, true, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			results := a.Detector.CheckBatch(ctx, balances)
			for _, r := range results {
				switch {
				case r.Err != nil:
					fmt.Fprintf(out, "%-20s ERROR %v\n", r.AccountID, r.Err)
				case r.Correction != nil:
					fmt.Fprintf(out, "%-20s %s %s (%s)\n", r.AccountID, r.Correction.Type, r.Correction.Amount, r.Correction.EventID)
				default:
					fmt.Fprintf(out, "%-20s ok\n", r.AccountID)
				}
			}

			if failed := drift.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d accounts could not be checked", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file with reported balances")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readBalances(path string) ([]models.CbsBalance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw []reportedBalance
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	balances := make([]models.CbsBalance, 0, len(raw))
	for i, r := range raw {
		if r.AccountID == "" {
			return nil, fmt.Errorf("%s: entry %d: accountId is required", path, i)
		}
		amount, err := decimal.NewFromString(r.ReportedBalance)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: reportedBalance %q: %w", path, i, r.ReportedBalance, err)
		}
		balances = append(balances, models.CbsBalance{AccountID: r.AccountID, ReportedBalance: amount})
	}
	return balances, nil
}
