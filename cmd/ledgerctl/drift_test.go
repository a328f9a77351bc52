package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadBalancesYAML(t *testing.T) {
	path := writeFile(t, "balances.yaml", `
- accountId: A
  reportedBalance: 130.10
- accountId: B
  reportedBalance: "0.1"
`)
	balances, err := readBalances(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 2 {
		t.Fatalf("len=%d want 2", len(balances))
	}
	if balances[0].AccountID != "A" || !balances[0].ReportedBalance.Equal(decimal.RequireFromString("130.10")) {
		t.Fatalf("first=%+v", balances[0])
	}
	if !balances[1].ReportedBalance.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("second=%+v", balances[1])
	}
}

func TestReadBalancesJSON(t *testing.T) {
	path := writeFile(t, "balances.json", `[{"accountId":"A","reportedBalance":"5.00"}]`)
	balances, err := readBalances(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(balances) != 1 || !balances[0].ReportedBalance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("balances=%+v", balances)
	}
}

func TestReadBalancesErrors(t *testing.T) {
	for name, content := range map[string]string{
		"missing-account.yaml": "- reportedBalance: 1\n",
		"bad-amount.yaml":      "- accountId: A\n  reportedBalance: lots\n",
		"not-a-list.yaml":      "accountId: A\n",
	} {
		if _, err := readBalances(writeFile(t, name, content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := readBalances(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}
